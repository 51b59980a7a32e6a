package agent_test

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/agent"
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/pkg/prompts"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/effective-security/reagent/store"
	"github.com/effective-security/reagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPrompt = prompts.NewSystemPrompt(
	"You are a research assistant. Always call **exactly one** of the provided tools before answering, even if you think you know the answer.", nil)

type fakeModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	loop      *llms.ContentResponse
	calls     int
	received  [][]llms.Message
}

func (m *fakeModel) GetName() string                    { return "fake-model" }
func (m *fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderGroq }

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, messages)
	if m.loop != nil {
		return m.loop, nil
	}
	if m.calls >= len(m.responses) {
		return nil, errors.New("fake model ran out of scripted responses")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func textResp(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}},
	}
}

func toolCallResp(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{StopReason: "tool_calls", ToolCalls: calls}},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

type echoInput struct {
	Message string `json:"message" jsonschema:"title=Message,description=Message to echo back."`
}

type echoTool struct {
	name string
	fail error
	// wait blocks the call until closed, release is closed when the call returns.
	wait    chan struct{}
	release chan struct{}
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "Echoes the message back." }
func (t *echoTool) Parameters() any {
	sc, _ := schema.New(reflect.TypeOf(echoInput{}))
	return sc.Parameters
}

func (t *echoTool) Call(ctx context.Context, input string) (string, error) {
	if t.release != nil {
		defer close(t.release)
	}
	if t.wait != nil {
		select {
		case <-t.wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if t.fail != nil {
		return "", t.fail
	}
	var in echoInput
	if err := tools.DecodeInput(input, &in); err != nil {
		return "", err
	}
	return "echo: " + in.Message, nil
}

func TestRunDirectAnswer(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []*llms.ContentResponse{
		textResp("Paris is the capital of France."),
	}}
	ag := agent.NewAgent(model, testPrompt).
		WithTools(&echoTool{name: "echo"})

	res, err := ag.Run(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeCompleted, res.Outcome)
	assert.Equal(t, "Paris is the capital of France.", res.Content)
	assert.Equal(t, 0, res.ToolIterations)

	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.RoleHuman, msgs[0].Role)
	assert.Equal(t, llms.RoleAI, msgs[1].Role)

	// system prompt is engine-side, not part of the transcript
	require.Len(t, model.received, 1)
	require.Len(t, model.received[0], 2)
	assert.Equal(t, llms.RoleSystem, model.received[0][0].Role)
	assert.Contains(t, model.received[0][0].GetContent(), "exactly one")
}

func TestRunToolRoundTrip(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(toolCall("call_1", "echo", `{"message":"hello"}`)),
		textResp("The tool said: echo: hello"),
	}}
	ag := agent.NewAgent(model, testPrompt).
		WithTools(&echoTool{name: "echo"})

	res, err := ag.Run(context.Background(), "Say hello through the tool.")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.ToolIterations)

	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.RoleHuman, msgs[0].Role)
	assert.Equal(t, llms.RoleAI, msgs[1].Role)
	assert.Equal(t, llms.RoleTool, msgs[2].Role)
	assert.Equal(t, llms.RoleAI, msgs[3].Role)

	calls := msgs[1].ToolCalls()
	require.Len(t, calls, 1)
	resps := msgs[2].ToolResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, calls[0].ID, resps[0].ToolCallID)
	assert.Equal(t, "echo: hello", resps[0].Content)
}

func TestRunToolResultsInRequestOrder(t *testing.T) {
	t.Parallel()

	// slow finishes after fast, results must still follow request order
	fastDone := make(chan struct{})
	slow := &echoTool{name: "slow_echo", wait: fastDone}
	fast := &echoTool{name: "fast_echo", release: fastDone}

	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(
			toolCall("call_slow", "slow_echo", `{"message":"first"}`),
			toolCall("call_fast", "fast_echo", `{"message":"second"}`),
		),
		textResp("done"),
	}}
	ag := agent.NewAgent(model, testPrompt).WithTools(slow, fast)

	res, err := ag.Run(context.Background(), "Race the tools.")
	require.NoError(t, err)

	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 5)
	first := msgs[2].ToolResponses()
	second := msgs[3].ToolResponses()
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "call_slow", first[0].ToolCallID)
	assert.Equal(t, "echo: first", first[0].Content)
	assert.Equal(t, "call_fast", second[0].ToolCallID)
	assert.Equal(t, "echo: second", second[0].Content)
}

func TestRunBudgetExhausted(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		loop: toolCallResp(toolCall("", "echo", `{"message":"again"}`)),
	}
	ag := agent.NewAgent(model, testPrompt,
		agent.WithMaxToolIterations(5)).
		WithTools(&echoTool{name: "echo"})

	res, err := ag.Run(context.Background(), "Never stop calling tools.")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeBudgetExhausted, res.Outcome)
	assert.Equal(t, 5, res.ToolIterations)
	assert.Equal(t, agent.BudgetExhaustedAnswer, res.Content)

	// Human + 5 cycles of (AI tool calls + tool result) + synthesized answer
	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 12)
	last := msgs[len(msgs)-1]
	assert.Equal(t, llms.RoleAI, last.Role)
	assert.Equal(t, agent.BudgetExhaustedAnswer+"\n", last.GetContent())
}

func TestRunToolFailureRecovered(t *testing.T) {
	t.Parallel()

	broken := &echoTool{name: "broken", fail: tools.NewExecutionError("broken", errors.New("rate limited"))}
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(toolCall("call_1", "broken", `{"message":"x"}`)),
		textResp("I could not use the tool, but the answer is 42."),
	}}
	ag := agent.NewAgent(model, testPrompt).WithTools(broken)

	res, err := ag.Run(context.Background(), "Use the broken tool.")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeCompleted, res.Outcome)

	msgs := res.Conversation.Messages()
	resps := msgs[2].ToolResponses()
	require.Len(t, resps, 1)
	assert.Contains(t, resps[0].Content, "Tool call failed:")
	assert.Contains(t, resps[0].Content, "rate limited")
}

func TestRunToolUnavailableTerminal(t *testing.T) {
	t.Parallel()

	gone := &echoTool{name: "gone", fail: errors.WithMessage(tools.ErrUnavailable, "connection refused")}
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(toolCall("call_1", "gone", `{"message":"x"}`)),
	}}
	ag := agent.NewAgent(model, testPrompt).WithTools(gone)

	_, err := ag.Run(context.Background(), "Use the vanished tool.")
	require.Error(t, err)
	assert.ErrorIs(t, err, tools.ErrUnavailable)
}

func TestRunUnknownTool(t *testing.T) {
	t.Parallel()

	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(toolCall("call_1", "telepathy", `{}`)),
		textResp("Sticking to the tools I have."),
	}}
	ag := agent.NewAgent(model, testPrompt).
		WithTools(&echoTool{name: "echo"})

	res, err := ag.Run(context.Background(), "Use a tool that does not exist.")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeCompleted, res.Outcome)

	msgs := res.Conversation.Messages()
	resps := msgs[2].ToolResponses()
	require.Len(t, resps, 1)
	assert.Contains(t, resps[0].Content, "Tool `telepathy` not found")
	assert.Contains(t, resps[0].Content, "echo")
}

func TestRunCancelledMidBatch(t *testing.T) {
	t.Parallel()

	blocked := &echoTool{name: "blocked", wait: make(chan struct{})}
	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(toolCall("call_1", "blocked", `{"message":"x"}`)),
	}}
	ag := agent.NewAgent(model, testPrompt).WithTools(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res, err := ag.Run(ctx, "Block forever.")
	require.NoError(t, err)
	assert.Equal(t, agent.OutcomeCancelled, res.Outcome)
	assert.Equal(t, agent.CancelledAnswer, res.Content)

	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 4)
	// the in-flight invocation resolved to an error-text result
	resps := msgs[2].ToolResponses()
	require.Len(t, resps, 1)
	assert.Contains(t, resps[0].Content, "Tool call failed:")

	last := msgs[len(msgs)-1]
	assert.Equal(t, llms.RoleAI, last.Role)
	assert.True(t, strings.HasPrefix(last.GetContent(), agent.CancelledAnswer))
}

func TestRunWithStore(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	model := &fakeModel{responses: []*llms.ContentResponse{
		textResp("Paris."),
		textResp("About 2.1 million."),
	}}
	ag := agent.NewAgent(model, testPrompt, agent.WithStore(s))

	ctx := context.Background()
	_, err := ag.Run(ctx, "What is the capital of France?")
	require.NoError(t, err)

	res, err := ag.Run(ctx, "And its population?")
	require.NoError(t, err)
	assert.Equal(t, "About 2.1 million.", res.Content)

	// the second call sees the first exchange as engine-side history
	require.Len(t, model.received, 2)
	second := model.received[1]
	require.Len(t, second, 4)
	assert.Equal(t, llms.RoleSystem, second[0].Role)
	assert.Equal(t, llms.RoleHuman, second[1].Role)
	assert.Equal(t, llms.RoleAI, second[2].Role)
	assert.Equal(t, llms.RoleHuman, second[3].Role)

	// the new run's transcript holds only its own question
	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "And its population?\n", msgs[0].GetContent())
}

func TestRunEmptyQuestion(t *testing.T) {
	t.Parallel()

	ag := agent.NewAgent(&fakeModel{}, testPrompt)
	_, err := ag.Run(context.Background(), "")
	require.Error(t, err)
}
