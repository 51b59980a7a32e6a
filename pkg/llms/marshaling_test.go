package llms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	transcript := []Message{
		MessageFromTextParts(RoleHuman, "Explain machine learning?"),
		MessageFromToolCalls(RoleAI, ToolCall{
			ID:   "call_1",
			Type: "function",
			FunctionCall: &FunctionCall{
				Name:      "wikipedia_search",
				Arguments: `{"query":"machine learning"}`,
			},
		}),
		MessageFromToolResponse(RoleTool, ToolCallResponse{
			ToolCallID: "call_1",
			Name:       "wikipedia_search",
			Content:    "Page: Machine learning\nSummary: ...",
		}),
		MessageFromTextParts(RoleAI, "Machine learning is a field of AI."),
	}

	js, err := json.Marshal(transcript)
	require.NoError(t, err)

	var decoded []Message
	require.NoError(t, json.Unmarshal(js, &decoded))
	assert.Equal(t, transcript, decoded)
}

func TestUnmarshalInvalidParts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{
			"unknown part type",
			`{"role":"human","parts":[{"type":"video","text":"x"}]}`,
		},
		{
			"tool_call without body",
			`{"role":"ai","parts":[{"type":"tool_call"}]}`,
		},
		{
			"tool_response without body",
			`{"role":"tool","parts":[{"type":"tool_response"}]}`,
		},
		{
			"parts not an array",
			`{"role":"human","parts":{"type":"text"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var m Message
			assert.Error(t, json.Unmarshal([]byte(tt.input), &m))
		})
	}
}

func TestUnmarshalToolCallDefaults(t *testing.T) {
	t.Parallel()

	// Function body may be absent or malformed; the call itself still decodes.
	var tc ToolCall
	err := json.Unmarshal([]byte(`{"type":"tool_call","tool_call":{"id":"1","type":"function"}}`), &tc)
	require.NoError(t, err)
	assert.Equal(t, "1", tc.ID)
	require.NotNil(t, tc.FunctionCall)
	assert.Empty(t, tc.FunctionCall.Name)

	err = json.Unmarshal([]byte(`{"type":"tool_call","tool_call":{"id":"1","type":"function","function":"bogus"}}`), &tc)
	require.NoError(t, err)
	require.NotNil(t, tc.FunctionCall)
}
