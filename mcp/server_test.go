package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/mcp"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/effective-security/reagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Message string `json:"message" jsonschema:"title=Message,description=Message to echo back."`
}

type echoTool struct {
	name string
	fail error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "Echoes the message back." }
func (t *echoTool) Parameters() any {
	sc, _ := schema.New(reflect.TypeOf(echoInput{}))
	return sc.Parameters
}

func (t *echoTool) Call(_ context.Context, input string) (string, error) {
	if t.fail != nil {
		return "", t.fail
	}
	var in echoInput
	if err := tools.DecodeInput(input, &in); err != nil {
		return "", err
	}
	return "echo: " + in.Message, nil
}

type panicTool struct{}

func (t *panicTool) Name() string        { return "panic_tool" }
func (t *panicTool) Description() string { return "Always panics." }
func (t *panicTool) Parameters() any {
	sc, _ := schema.New(reflect.TypeOf(echoInput{}))
	return sc.Parameters
}
func (t *panicTool) Call(context.Context, string) (string, error) { panic("boom") }

func post(t *testing.T, srv *httptest.Server, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

type rpcEnvelope struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestServerInitialize(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0", mcp.WithInstructions("call tools"))
	srv := httptest.NewServer(server)
	defer srv.Close()

	resp, raw := post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0.1"}}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))

	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Nil(t, env.Error)

	var result mcp.InitializeResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, mcp.ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "research", result.ServerInfo.Name)
	assert.Equal(t, "call tools", result.Instructions)
	require.NotNil(t, result.Capabilities.Tools)
}

func TestServerNotificationAccepted(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0")
	srv := httptest.NewServer(server)
	defer srv.Close()

	resp, raw := post(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, raw)
}

func TestServerErrors(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0")
	srv := httptest.NewServer(server)
	defer srv.Close()

	tcases := []struct {
		name    string
		body    string
		expCode int
	}{
		{name: "parse error", body: `{invalid`, expCode: -32700},
		{name: "invalid request", body: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, expCode: -32600},
		{name: "method not found", body: `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, expCode: -32601},
		{name: "unknown tool", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing"}}`, expCode: -32602},
		{name: "invalid cursor", body: `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"cursor":"not-base64!"}}`, expCode: -32602},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := post(t, srv, tc.body, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var env rpcEnvelope
			require.NoError(t, json.Unmarshal(raw, &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.expCode, env.Error.Code)
		})
	}

	resp, _ := post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, map[string]string{
		"Mcp-Session-Id": "unknown-session",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	getResp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestServerListToolsPagination(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0", mcp.WithPaginationLimit(2))
	// register in a non alphabetical order
	for _, name := range []string{"b_tool", "a_tool", "c_tool", "e_tool", "d_tool"} {
		require.NoError(t, server.RegisterTool(&echoTool{name: name}))
	}
	srv := httptest.NewServer(server)
	defer srv.Close()

	listPage := func(cursor string) mcp.ListToolsResult {
		params := "{}"
		if cursor != "" {
			params = fmt.Sprintf(`{"cursor":%q}`, cursor)
		}
		_, raw := post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":`+params+`}`, nil)
		var env rpcEnvelope
		require.NoError(t, json.Unmarshal(raw, &env))
		require.Nil(t, env.Error)
		var result mcp.ListToolsResult
		require.NoError(t, json.Unmarshal(env.Result, &result))
		return result
	}

	page := listPage("")
	require.Len(t, page.Tools, 2)
	assert.Equal(t, "a_tool", page.Tools[0].Name)
	assert.Equal(t, "b_tool", page.Tools[1].Name)
	assert.NotEmpty(t, page.Tools[0].InputSchema)
	require.NotNil(t, page.NextCursor)

	page = listPage(*page.NextCursor)
	require.Len(t, page.Tools, 2)
	assert.Equal(t, "c_tool", page.Tools[0].Name)
	assert.Equal(t, "d_tool", page.Tools[1].Name)
	require.NotNil(t, page.NextCursor)

	page = listPage(*page.NextCursor)
	require.Len(t, page.Tools, 1)
	assert.Equal(t, "e_tool", page.Tools[0].Name)
	assert.Nil(t, page.NextCursor)
}

func TestServerToolCall(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0")
	require.NoError(t, server.RegisterTool(&echoTool{name: "echo"}))
	require.NoError(t, server.RegisterTool(&echoTool{name: "broken", fail: errors.New("upstream unavailable")}))
	require.NoError(t, server.RegisterTool(&panicTool{}))
	srv := httptest.NewServer(server)
	defer srv.Close()

	callTool := func(body string) mcp.CallToolResult {
		_, raw := post(t, srv, body, nil)
		var env rpcEnvelope
		require.NoError(t, json.Unmarshal(raw, &env))
		require.Nil(t, env.Error)
		var result mcp.CallToolResult
		require.NoError(t, json.Unmarshal(env.Result, &result))
		return result
	}

	result := callTool(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
	assert.Equal(t, "echo: hi", result.Content[0].Text)
	assert.Equal(t, "echo: hi", result.JoinedText())

	// execution failure is reported in-band, not as an RPC error
	result = callTool(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"broken","arguments":{"message":"hi"}}}`)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)
	assert.Equal(t, "upstream unavailable", result.Content[0].Text)

	result = callTool(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"panic_tool","arguments":{"message":"hi"}}}`)
	assert.True(t, result.IsError)
	assert.Equal(t, "internal error", result.JoinedText())
}

func TestServerRegisterDuplicate(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0")
	require.NoError(t, server.RegisterTool(&echoTool{name: "echo"}))
	err := server.RegisterTool(&echoTool{name: "echo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.NoError(t, server.DeregisterTool("echo"))
	assert.Error(t, server.DeregisterTool("echo"))
}
