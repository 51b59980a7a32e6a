// Package registry connects to configured MCP servers, discovers the
// tools they expose and adapts them to the agent tool interface.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/chatmodel"
	"github.com/effective-security/reagent/mcp"
	"github.com/effective-security/reagent/mcp/transport/streamhttp"
	"github.com/effective-security/reagent/pkg/llmutils"
	"github.com/effective-security/reagent/pkg/metricskey"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	invopop "github.com/invopop/jsonschema"
	jsval "github.com/santhosh-tekuri/jsonschema/v5"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "registry")

var (
	// ErrUnreachable is returned when a configured server cannot be
	// connected or does not complete the handshake.
	ErrUnreachable = errors.New("server unreachable")
	// ErrProtocol is returned when a server responds with an invalid
	// tool listing, for example duplicate or unnamed tools.
	ErrProtocol = errors.New("protocol violation")
)

// Registry holds the connections and discovered tools of all
// configured MCP servers.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*mcp.Client
	tools   map[string]*remoteTool
}

// Open connects to every configured server and discovers its tools.
// All endpoints must be reachable, otherwise the registry is closed
// and an error is returned.
func Open(ctx context.Context, cfg *Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		clients: make(map[string]*mcp.Client),
		tools:   make(map[string]*remoteTool),
	}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.connect(ctx, name, cfg.Servers[name]); err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) connect(ctx context.Context, name string, cfg *ServerConfig) error {
	started := time.Now()
	defer metricskey.PerfRegistryDiscover.MeasureSince(started, name)

	tr := streamhttp.New(cfg.URL, streamhttp.WithHeaders(cfg.Headers))
	client := mcp.NewClient(tr, mcp.Implementation{Name: "reagent", Version: "1.0"})

	dialTimeout := time.Duration(values.NumbersCoalesce(cfg.DialTimeout, DefaultDialTimeout)) * time.Second
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	res, err := client.Initialize(dialCtx)
	if err != nil {
		metricskey.StatsRegistryErrors.IncrCounter(1, name, "unreachable")
		_ = client.Close()
		return errors.WithMessagef(ErrUnreachable, "server %s at %s: %s", name, cfg.URL, err.Error())
	}

	descriptors, err := client.ListAllTools(dialCtx)
	if err != nil {
		metricskey.StatsRegistryErrors.IncrCounter(1, name, "protocol")
		_ = client.Close()
		return errors.WithMessagef(ErrProtocol, "server %s: %s", name, err.Error())
	}

	callTimeout := time.Duration(values.NumbersCoalesce(cfg.CallTimeout, DefaultCallTimeout)) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[name] = client
	for _, d := range descriptors {
		if d.Name == "" {
			metricskey.StatsRegistryErrors.IncrCounter(1, name, "protocol")
			return errors.WithMessagef(ErrProtocol, "server %s returned a tool without name", name)
		}
		if existing, ok := r.tools[d.Name]; ok {
			metricskey.StatsRegistryErrors.IncrCounter(1, name, "protocol")
			return errors.WithMessagef(ErrProtocol, "tool %s offered by both %s and %s", d.Name, existing.server, name)
		}

		rt, err := newRemoteTool(name, client, d, callTimeout)
		if err != nil {
			metricskey.StatsRegistryErrors.IncrCounter(1, name, "protocol")
			return err
		}
		r.tools[d.Name] = rt
	}

	metricskey.StatsRegistryToolsDiscovered.IncrCounter(float64(len(descriptors)), name)
	logger.ContextKV(ctx, xlog.INFO,
		"server", name,
		"remote", res.ServerInfo.Name,
		"tools", len(descriptors),
	)

	return nil
}

// Tools returns the discovered tools sorted by name.
func (r *Registry) Tools() []tools.ITool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]tools.ITool, 0, len(names))
	for _, name := range names {
		list = append(list, r.tools[name])
	}
	return list
}

// Tool returns a discovered tool by name.
func (r *Registry) Tool(name string) (tools.ITool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Close closes all server connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "failed to close %s", name)
		}
		delete(r.clients, name)
	}
	r.tools = make(map[string]*remoteTool)
	return firstErr
}

// remoteTool adapts one discovered MCP tool to the agent tool interface.
type remoteTool struct {
	server      string
	client      *mcp.Client
	name        string
	description string
	params      *invopop.Schema
	validator   *jsval.Schema
	callTimeout time.Duration
}

var _ tools.ITool = (*remoteTool)(nil)

func newRemoteTool(server string, client *mcp.Client, d mcp.Tool, callTimeout time.Duration) (*remoteTool, error) {
	if len(d.InputSchema) == 0 {
		return nil, errors.WithMessagef(ErrProtocol, "tool %s on %s has no input schema", d.Name, server)
	}

	params := &invopop.Schema{}
	if err := json.Unmarshal(d.InputSchema, params); err != nil {
		return nil, errors.WithMessagef(ErrProtocol, "tool %s on %s has invalid input schema: %s", d.Name, server, err.Error())
	}

	compiler := jsval.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(d.InputSchema)); err != nil {
		return nil, errors.WithMessagef(ErrProtocol, "tool %s on %s has invalid input schema: %s", d.Name, server, err.Error())
	}
	validator, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.WithMessagef(ErrProtocol, "tool %s on %s has invalid input schema: %s", d.Name, server, err.Error())
	}

	return &remoteTool{
		server:      server,
		client:      client,
		name:        d.Name,
		description: d.Description,
		params:      params,
		validator:   validator,
		callTimeout: callTimeout,
	}, nil
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.description }
func (t *remoteTool) Parameters() any     { return t.params }

// Call invokes the remote tool. Transport failures surface as
// ErrUnavailable, execution failures as ExecutionError.
func (t *remoteTool) Call(ctx context.Context, input string) (string, error) {
	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, t.name)

	if input == "" {
		input = "{}"
	}
	data := llmutils.CleanJSON([]byte(input))

	var args any
	if err := json.Unmarshal(data, &args); err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		return "", errors.WithStack(chatmodel.ErrFailedUnmarshalInput)
	}
	if err := t.validator.Validate(args); err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		return "", tools.NewExecutionError(t.name, errors.WithMessage(err, "invalid arguments"))
	}

	callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	res, err := t.client.CallTool(callCtx, t.name, json.RawMessage(data))
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		if errors.IsAny(err, context.DeadlineExceeded, context.Canceled) {
			return "", tools.NewExecutionError(t.name, err)
		}
		return "", errors.WithMessagef(tools.ErrUnavailable, "tool %s on %s: %s", t.name, t.server, err.Error())
	}
	if res.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		return "", tools.NewExecutionError(t.name, errors.New(res.JoinedText()))
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, t.name)
	return res.JoinedText(), nil
}
