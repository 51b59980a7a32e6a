package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/llmutils"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

const sessionHeader = "Mcp-Session-Id"

// Server exposes registered tools over the MCP streamable HTTP transport.
// It implements http.Handler and is mounted on a single endpoint.
type Server struct {
	info            Implementation
	instructions    string
	paginationLimit *int

	mu       sync.RWMutex
	tools    map[string]tools.ITool
	sessions map[string]bool
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithInstructions sets the instructions returned during initialization.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithPaginationLimit caps the number of tools returned per tools/list page.
func WithPaginationLimit(limit int) ServerOption {
	return func(s *Server) {
		s.paginationLimit = &limit
	}
}

// NewServer creates a server identifying itself with the given name and version.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info:     Implementation{Name: name, Version: version},
		tools:    make(map[string]tools.ITool),
		sessions: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool adds a tool to the server. Duplicate names are rejected.
func (s *Server) RegisterTool(t tools.ITool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := t.Name()
	if _, ok := s.tools[name]; ok {
		return errors.Errorf("tool already registered: %s", name)
	}
	s.tools[name] = t
	return nil
}

// DeregisterTool removes a tool from the server.
func (s *Server) DeregisterTool(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[name]; !ok {
		return errors.Errorf("tool not registered: %s", name)
	}
	delete(s.tools, name)
	return nil
}

type rpcRequest struct {
	Jsonrpc string              `json:"jsonrpc"`
	Id      jsoniter.RawMessage `json:"id,omitempty"`
	Method  string              `json:"method"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Jsonrpc string              `json:"jsonrpc"`
	Id      jsoniter.RawMessage `json:"id"`
	Result  any                 `json:"result,omitempty"`
	Error   *rpcError           `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req rpcRequest
	if err := jsonit.Unmarshal(body, &req); err != nil {
		s.writeResponse(w, r, &rpcResponse{
			Jsonrpc: "2.0",
			Id:      jsoniter.RawMessage("null"),
			Error:   &rpcError{Code: ErrCodeParse, Message: "parse error"},
		})
		return
	}
	if req.Jsonrpc != "2.0" || req.Method == "" {
		s.writeResponse(w, r, &rpcResponse{
			Jsonrpc: "2.0",
			Id:      idOrNull(req.Id),
			Error:   &rpcError{Code: ErrCodeInvalidRequest, Message: "invalid request"},
		})
		return
	}

	// notifications receive no body
	if len(req.Id) == 0 || string(req.Id) == "null" {
		logger.ContextKV(r.Context(), xlog.DEBUG, "notification", req.Method)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if req.Method != "initialize" {
		if sid := r.Header.Get(sessionHeader); sid != "" && !s.hasSession(sid) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
	}

	resp := &rpcResponse{Jsonrpc: "2.0", Id: req.Id}
	switch req.Method {
	case "initialize":
		sid := uuid.NewString()
		s.mu.Lock()
		s.sessions[sid] = true
		s.mu.Unlock()
		w.Header().Set(sessionHeader, sid)
		resp.Result = &InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: ServerCapabilities{
				Tools: &ToolsCapability{},
			},
			ServerInfo:   s.info,
			Instructions: s.instructions,
		}
	case "ping":
		resp.Result = struct{}{}
	case "tools/list":
		result, rpcErr := s.handleListTools(req.Params)
		resp.Result, resp.Error = result, rpcErr
	case "tools/call":
		result, rpcErr := s.handleToolCall(r.Context(), req.Params)
		resp.Result, resp.Error = result, rpcErr
	default:
		resp.Error = &rpcError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
	if resp.Error != nil {
		resp.Result = nil
	}

	s.writeResponse(w, r, resp)
}

func (s *Server) hasSession(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Server) handleListTools(params jsoniter.RawMessage) (any, *rpcError) {
	var p ListToolsParams
	if len(params) > 0 {
		if err := jsonit.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: ErrCodeInvalidParams, Message: "invalid params"}
		}
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	start := 0
	if p.Cursor != "" {
		decoded, err := base64.StdEncoding.DecodeString(p.Cursor)
		if err != nil {
			return nil, &rpcError{Code: ErrCodeInvalidParams, Message: "invalid cursor"}
		}
		start = sort.SearchStrings(names, string(decoded))
		if start >= len(names) || names[start] != string(decoded) {
			return nil, &rpcError{Code: ErrCodeInvalidParams, Message: "invalid cursor"}
		}
	}

	end := len(names)
	var nextCursor *string
	if s.paginationLimit != nil && start+*s.paginationLimit < len(names) {
		end = start + *s.paginationLimit
		cursor := base64.StdEncoding.EncodeToString([]byte(names[end]))
		nextCursor = &cursor
	}

	result := ListToolsResult{
		Tools:      make([]Tool, 0, end-start),
		NextCursor: nextCursor,
	}
	s.mu.RLock()
	for _, name := range names[start:end] {
		t := s.tools[name]
		result.Tools = append(result.Tools, Tool{
			Name:        name,
			Description: t.Description(),
			InputSchema: []byte(llmutils.ToJSON(t.Parameters())),
		})
	}
	s.mu.RUnlock()

	return result, nil
}

func (s *Server) handleToolCall(ctx context.Context, params jsoniter.RawMessage) (result any, rpcErr *rpcError) {
	var p CallToolParams
	if err := jsonit.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: ErrCodeInvalidParams, Message: "invalid params"}
	}

	s.mu.RLock()
	t, ok := s.tools[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, &rpcError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", p.Name)}
	}

	// a panicking tool must not take the server down
	defer func() {
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR, "tool", p.Name, "panic", rec)
			result = &CallToolResult{
				Content: []Content{NewTextContent("internal error")},
				IsError: true,
			}
			rpcErr = nil
		}
	}()

	args := "{}"
	if len(p.Arguments) > 0 {
		args = string(p.Arguments)
	}

	out, err := t.Call(ctx, args)
	if err != nil {
		return &CallToolResult{
			Content: []Content{NewTextContent(err.Error())},
			IsError: true,
		}, nil
	}
	return &CallToolResult{
		Content: []Content{NewTextContent(out)},
	}, nil
}

func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp *rpcResponse) {
	body, err := jsonit.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}

	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "application/json") {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func idOrNull(id jsoniter.RawMessage) jsoniter.RawMessage {
	if len(id) == 0 {
		return jsoniter.RawMessage("null")
	}
	return id
}
