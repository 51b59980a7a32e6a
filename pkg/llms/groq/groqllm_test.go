package groq_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/pkg/llms/groq"
	"github.com/effective-security/reagent/pkg/llmutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, body string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if capture != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, capture))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestGenerateContentText(t *testing.T) {
	var req map[string]any
	srv := newServer(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "llama-3.1-8b-instant",
		"choices": [
			{
				"index": 0,
				"message": {"role": "assistant", "content": "Hello there."},
				"finish_reason": "stop"
			}
		],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`, &req)
	defer srv.Close()

	llm, err := groq.New(
		groq.WithToken("test-key"),
		groq.WithBaseURL(srv.URL),
		groq.WithModel("llama-3.1-8b-instant"),
	)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", llm.GetName())
	assert.Equal(t, llms.ProviderGroq, llm.GetProviderType())

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{
			llms.MessageFromTextParts(llms.RoleSystem, "You are terse."),
			llms.MessageFromTextParts(llms.RoleHuman, "Say hello."),
		},
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(256),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello there.", resp.Choices[0].Content)
	assert.Equal(t, "stop", resp.Choices[0].StopReason)

	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(12), in)
	assert.Equal(t, int64(4), out)
	assert.Equal(t, int64(16), total)

	assert.Equal(t, "llama-3.1-8b-instant", req["model"])
	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first, ok := msgs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "system", first["role"])
}

func TestGenerateContentToolCalls(t *testing.T) {
	var req map[string]any
	srv := newServer(t, `{
		"id": "chatcmpl-2",
		"object": "chat.completion",
		"model": "llama-3.1-8b-instant",
		"choices": [
			{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [
						{
							"id": "call_abc",
							"type": "function",
							"function": {"name": "echo", "arguments": "{\"message\":\"hi\"}"}
						}
					]
				},
				"finish_reason": "tool_calls"
			}
		],
		"usage": {"prompt_tokens": 30, "completion_tokens": 10, "total_tokens": 40}
	}`, &req)
	defer srv.Close()

	llm, err := groq.New(groq.WithToken("test-key"), groq.WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{
			llms.MessageFromTextParts(llms.RoleHuman, "Echo hi."),
		},
		llms.WithTools([]llms.Tool{
			{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        "echo",
					Description: "Echoes the message back.",
				},
			},
		}),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.Len(t, resp.Choices[0].ToolCalls, 1)
	tc := resp.Choices[0].ToolCalls[0]
	assert.Equal(t, "call_abc", tc.ID)
	require.NotNil(t, tc.FunctionCall)
	assert.Equal(t, "echo", tc.FunctionCall.Name)
	assert.Equal(t, `{"message":"hi"}`, tc.FunctionCall.Arguments)
	assert.Equal(t, "tool_calls", resp.Choices[0].StopReason)

	sent, ok := req["tools"].([]any)
	require.True(t, ok)
	require.Len(t, sent, 1)
}

func TestGenerateContentToolRoundTrip(t *testing.T) {
	var req map[string]any
	srv := newServer(t, `{
		"id": "chatcmpl-3",
		"object": "chat.completion",
		"model": "llama-3.1-8b-instant",
		"choices": [
			{
				"index": 0,
				"message": {"role": "assistant", "content": "The tool said hi."},
				"finish_reason": "stop"
			}
		],
		"usage": {"prompt_tokens": 50, "completion_tokens": 8, "total_tokens": 58}
	}`, &req)
	defer srv.Close()

	llm, err := groq.New(groq.WithToken("test-key"), groq.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(),
		[]llms.Message{
			llms.MessageFromTextParts(llms.RoleHuman, "Echo hi."),
			llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
				ID:   "call_abc",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      "echo",
					Arguments: `{"message":"hi"}`,
				},
			}),
			llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: "call_abc",
				Name:       "echo",
				Content:    "echo: hi",
			}),
		},
	)
	require.NoError(t, err)

	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)

	assistant, ok := msgs[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "assistant", assistant["role"])
	calls, ok := assistant["tool_calls"].([]any)
	require.True(t, ok)
	require.Len(t, calls, 1)

	toolMsg, ok := msgs[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_abc", toolMsg["tool_call_id"])
	assert.Equal(t, "echo: hi", toolMsg["content"])
}

func TestNewMissingToken(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	_, err := groq.New()
	require.Error(t, err)
	assert.ErrorIs(t, err, groq.ErrMissingToken)
}
