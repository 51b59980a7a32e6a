package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/mcp/internal/protocol"
	"github.com/effective-security/reagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "mcp")

// Client talks to one MCP server over a transport.
type Client struct {
	protocol  *protocol.Protocol
	transport transport.Transport
	info      Implementation

	mu           sync.RWMutex
	initialized  bool
	capabilities ServerCapabilities
	serverInfo   Implementation
}

// NewClient creates a client over the given transport.
func NewClient(tr transport.Transport, info Implementation) *Client {
	return &Client{
		protocol:  protocol.NewProtocol(),
		transport: tr,
		info:      info,
	}
}

// Initialize connects the transport and performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if initialized {
		return nil, errors.New("client already initialized")
	}

	if err := c.protocol.Connect(c.transport); err != nil {
		return nil, errors.WithMessage(err, "failed to connect transport")
	}

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      c.info,
	}
	var result InitializeResult
	if err := c.request(ctx, "initialize", params, &result); err != nil {
		return nil, errors.WithMessage(err, "failed to initialize")
	}
	if result.ProtocolVersion == "" {
		return nil, errors.New("server returned no protocol version")
	}

	if err := c.protocol.Notification("notifications/initialized", struct{}{}); err != nil {
		return nil, errors.WithMessage(err, "failed to send initialized notification")
	}

	c.mu.Lock()
	c.initialized = true
	c.capabilities = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion,
	)

	return &result, nil
}

// ServerInfo returns the implementation info reported during initialization.
func (c *Client) ServerInfo() Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Ping checks that the server is still responsive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	var result struct{}
	return c.request(ctx, "ping", struct{}{}, &result)
}

// ListTools returns one page of the server's tool listing.
func (c *Client) ListTools(ctx context.Context, cursor string) (*ListToolsResult, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err := c.request(ctx, "tools/list", ListToolsParams{Cursor: cursor}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAllTools follows pagination cursors until the full listing is retrieved.
func (c *Client) ListAllTools(ctx context.Context) ([]Tool, error) {
	var all []Tool
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := c.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Tools...)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return all, nil
		}
		if seen[*page.NextCursor] {
			return nil, errors.Errorf("server returned repeated cursor: %s", *page.NextCursor)
		}
		seen[*page.NextCursor] = true
		cursor = *page.NextCursor
	}
}

// CallTool invokes a tool by name with raw JSON arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}
	var result CallToolResult
	err := c.request(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.protocol.Close()
}

func (c *Client) checkInitialized() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return errors.New("client not initialized")
	}
	return nil
}

func (c *Client) request(ctx context.Context, method string, params any, out any) error {
	res, err := c.protocol.Request(ctx, method, params, nil)
	if err != nil {
		return err
	}
	raw, ok := res.(json.RawMessage)
	if !ok {
		raw, err = json.Marshal(res)
		if err != nil {
			return errors.Wrap(err, "failed to marshal result")
		}
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s result", method)
	}
	return nil
}
