package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/reagent/mcp"
	"github.com/effective-security/reagent/mcp/transport/streamhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()

	server := mcp.NewServer("research", "1.0.0", mcp.WithPaginationLimit(2))
	for _, name := range []string{"b_tool", "a_tool", "c_tool"} {
		require.NoError(t, server.RegisterTool(&echoTool{name: name}))
	}
	srv := httptest.NewServer(server)
	defer srv.Close()

	tr := streamhttp.New(srv.URL, streamhttp.WithHTTPClient(srv.Client()))
	client := mcp.NewClient(tr, mcp.Implementation{Name: "test-client", Version: "0.1"})
	defer client.Close()

	ctx := context.Background()

	// calls before the handshake are rejected
	_, err := client.ListTools(ctx, "")
	require.Error(t, err)

	res, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, mcp.ProtocolVersion, res.ProtocolVersion)
	assert.Equal(t, "research", res.ServerInfo.Name)
	assert.Equal(t, "research", client.ServerInfo().Name)
	assert.NotEmpty(t, tr.SessionID())

	_, err = client.Initialize(ctx)
	require.Error(t, err)

	require.NoError(t, client.Ping(ctx))

	all, err := client.ListAllTools(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a_tool", all[0].Name)
	assert.Equal(t, "b_tool", all[1].Name)
	assert.Equal(t, "c_tool", all[2].Name)
	assert.Equal(t, "Echoes the message back.", all[0].Description)
	assert.NotEmpty(t, all[0].InputSchema)

	result, err := client.CallTool(ctx, "a_tool", json.RawMessage(`{"message":"hello"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "echo: hello", result.JoinedText())

	// RPC errors surface as call errors
	_, err = client.CallTool(ctx, "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestClientEventStreamResponse(t *testing.T) {
	t.Parallel()

	// a server that always answers over SSE
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			Id     *int64 `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		if req.Id == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		var result string
		switch req.Method {
		case "initialize":
			result = `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"sse","version":"1.0"}}`
		case "tools/call":
			result = `{"content":[{"type":"text","text":"streamed"}]}`
		default:
			result = `{}`
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":%d,\"result\":%s}\n\n", *req.Id, result)
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	tr := streamhttp.New(srv.URL, streamhttp.WithHTTPClient(srv.Client()))
	client := mcp.NewClient(tr, mcp.Implementation{Name: "test-client", Version: "0.1"})
	defer client.Close()

	ctx := context.Background()
	res, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sse", res.ServerInfo.Name)

	result, err := client.CallTool(ctx, "any", nil)
	require.NoError(t, err)
	assert.Equal(t, "streamed", result.JoinedText())
}

func TestClientUnreachable(t *testing.T) {
	t.Parallel()

	// a port that nothing listens on
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := streamhttp.New(url)
	client := mcp.NewClient(tr, mcp.Implementation{Name: "test-client", Version: "0.1"})
	defer client.Close()

	_, err := client.Initialize(context.Background())
	require.Error(t, err)
}
