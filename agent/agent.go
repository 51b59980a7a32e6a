// Package agent runs the tool-calling control loop: a bounded state machine
// that alternates reasoning steps with concurrent tool execution until the
// model produces a final answer.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/chatmodel"
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/pkg/llmutils"
	"github.com/effective-security/reagent/pkg/metricskey"
	"github.com/effective-security/reagent/pkg/prompts"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "agent")

// State of the control loop.
type State int

const (
	// StateAwaitingReasoning means the next step is a model call.
	StateAwaitingReasoning State = iota
	// StateAwaitingToolResults means a tool batch is in flight.
	StateAwaitingToolResults
	// StateDone means the transcript is closed.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingReasoning:
		return "awaiting_reasoning"
	case StateAwaitingToolResults:
		return "awaiting_tool_results"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state_%d", int(s))
	}
}

// Outcome describes how a run ended.
type Outcome string

const (
	// OutcomeCompleted means the model produced a final answer.
	OutcomeCompleted Outcome = "completed"
	// OutcomeBudgetExhausted means the run was stopped at the tool iteration bound.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	// OutcomeCancelled means the caller cancelled the run.
	OutcomeCancelled Outcome = "cancelled"
)

// BudgetExhaustedAnswer closes the transcript when the model keeps requesting
// tools past the iteration bound.
const BudgetExhaustedAnswer = "I was not able to reach a final answer within the allowed number of tool calls. Please narrow the question and try again."

// CancelledAnswer closes the transcript when the caller cancels the run.
const CancelledAnswer = "The request was cancelled before a final answer was reached."

// Result is the outcome of a single agent run.
type Result struct {
	// Content is the text of the final Assistant message.
	Content string
	// Response is the last model response of the run.
	Response *llms.ContentResponse
	// Conversation is the full transcript of the run.
	Conversation *chatmodel.Conversation
	// Outcome describes how the run ended.
	Outcome Outcome
	// ToolIterations is the number of reasoning/tool cycles executed.
	ToolIterations int
}

// Agent drives a tool-calling conversation with a reasoning model.
type Agent struct {
	LLM llms.Model

	toolsByName map[string]tools.ITool
	toolsNames  []string
	tools       []tools.ITool
	llmToolDefs []llms.Tool

	cfg         *Config
	name        string
	description string
	sysprompt   prompts.FormatPrompter
}

var _ IAgent = (*Agent)(nil)

// NewAgent creates an agent bound to a model and a system prompt.
func NewAgent(llmModel llms.Model, sysprompt prompts.FormatPrompter, options ...Option) *Agent {
	return &Agent{
		cfg:         NewConfig(options...),
		LLM:         llmModel,
		sysprompt:   sysprompt,
		name:        "Research Agent",
		description: "An agent that answers questions with the help of external tools.",
	}
}

// WithName sets the name of the Agent.
func (a *Agent) WithName(name string) *Agent {
	a.name = name
	return a
}

// WithDescription sets the description of the Agent.
func (a *Agent) WithDescription(description string) *Agent {
	a.description = description
	return a
}

// Name returns the name of the Agent.
func (a *Agent) Name() string {
	return a.name
}

// Description returns the description of the Agent.
func (a *Agent) Description() string {
	return a.description
}

// GetTools returns the tools available to the Agent.
func (a *Agent) GetTools() []tools.ITool {
	return a.tools
}

// WithTools adds new tools to the Agent,
// existing tools are not replaced.
func (a *Agent) WithTools(list ...tools.ITool) *Agent {
	if a.toolsByName == nil {
		a.toolsByName = make(map[string]tools.ITool)
	}
	for _, tool := range list {
		name := tool.Name()
		// use lowercase for the key
		nameLowerCase := strings.ToLower(name)
		if a.toolsByName[nameLowerCase] == nil {
			a.toolsByName[nameLowerCase] = tool
			a.toolsNames = append(a.toolsNames, name)
			a.tools = append(a.tools, tool)
			t := llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        name,
					Description: tool.Description(),
					Parameters:  schema.MustFromAny(tool.Parameters()),
				},
			}
			a.llmToolDefs = append(a.llmToolDefs, t)
		}
	}
	return a
}

// GetCallConfig returns a per-call config with the provided options applied.
func (a *Agent) GetCallConfig(opts ...Option) *Config {
	return a.cfg.Apply(opts...)
}

// GetSystemPrompt formats the system prompt of the Agent.
func (a *Agent) GetSystemPrompt(promptInputs map[string]any) (string, error) {
	if a.sysprompt == nil {
		return "", nil
	}
	promptValue, err := a.sysprompt.FormatPrompt(llmutils.MergeInputs(a.cfg.PromptInput, promptInputs))
	if err != nil {
		return "", errors.WithMessage(err, "failed to format system prompt")
	}
	return strings.TrimRight(promptValue.String(), "\n"), nil
}

// Run asks one question and drives the loop until the transcript is closed.
func (a *Agent) Run(ctx context.Context, input string, opts ...Option) (*Result, error) {
	started := time.Now()
	defer metricskey.PerfAgentRun.MeasureSince(started, a.name)

	cfg := a.GetCallConfig(opts...)

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnAgentStart(ctx, a, input)
	}

	res, err := a.run(ctx, cfg, input)
	if err != nil {
		metricskey.StatsAgentRunsFailed.IncrCounter(1, a.name)
		if callback != nil {
			callback.OnAgentError(ctx, a, input, err)
		}
		return nil, err
	}
	metricskey.StatsAgentRunsSucceeded.IncrCounter(1, a.name)
	if callback != nil {
		callback.OnAgentEnd(ctx, a, input, res)
	}
	return res, nil
}

func (a *Agent) run(ctx context.Context, cfg *Config, input string) (*Result, error) {
	conv, err := chatmodel.NewConversation(input)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := a.GetSystemPrompt(cfg.PromptInput)
	if err != nil {
		return nil, err
	}

	// The system prompt and prior history are engine-side context only,
	// the Conversation holds this run's transcript.
	var messageHistory []llms.Message
	if systemPrompt != "" {
		messageHistory = append(messageHistory, llms.MessageFromTextParts(llms.RoleSystem, systemPrompt))
	}
	if cfg.Store != nil {
		prevMessages, err := cfg.Store.Messages(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"status", "failed_to_load_history",
				"err", err.Error(),
			)
		} else {
			messageHistory = append(messageHistory, prevMessages...)
		}
	}
	messageHistory = append(messageHistory, conv.Messages()...)

	if len(a.llmToolDefs) > 0 {
		prov := a.LLM.GetProviderType()
		if !prov.Supports(llms.CapabilityFunctionCalling) {
			return nil, errors.Newf("agent %s: the LLM does not support function calling", a.name)
		}
	}
	callOpts := cfg.GetCallOptions(a.llmToolDefs)

	agentName := a.name
	modelName := a.LLM.GetName()

	toolsLimit := values.NumbersCoalesce(cfg.MaxToolIterations, DefaultMaxToolIterations)
	maxMessages := values.NumbersCoalesce(cfg.MaxMessages, DefaultMaxMessages)
	bytesLimit := uint64(values.NumbersCoalesce(cfg.MaxContentSize, DefaultMaxContentSize))

	res := &Result{
		Conversation: conv,
		Outcome:      OutcomeCompleted,
	}

	state := StateAwaitingReasoning
	retryCount := 0
	consecutiveNotFound := 0

	for state != StateDone {
		if ctx.Err() != nil {
			a.closeCancelled(ctx, conv, res)
			break
		}

		if len(messageHistory) >= maxMessages {
			return nil, errors.Newf("agent %s: the messages count exceeded limit", agentName)
		}
		bytesSent := llmutils.CountMessagesContentSize(messageHistory)
		if bytesSent > bytesLimit {
			return nil, errors.Newf("agent %s: the content size exceeded limit", agentName)
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAgentLLMCallStart(ctx, a, a.LLM, messageHistory)
		}

		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messageHistory)), agentName, modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), agentName, modelName)

		resp, err := a.LLM.GenerateContent(ctx, messageHistory, callOpts...)
		if err != nil {
			if ctx.Err() != nil {
				a.closeCancelled(ctx, conv, res)
				break
			}
			return nil, errors.Wrapf(err, "failed to generate content from LLM")
		}
		res.Response = resp

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAgentLLMCallEnd(ctx, a, a.LLM, resp)
		}

		bytesReceived := llmutils.CountResponseContentSize(resp)
		metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), agentName, modelName)

		tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), agentName, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), agentName, modelName)

		if len(resp.Choices) == 0 {
			retryCount++
			if retryCount >= DefaultMaxRetries {
				return nil, errors.Newf("agent %s: LLM returned empty response after %d retries", agentName, retryCount)
			}
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", agentName,
				"status", "retrying_empty_response",
				"retry_count", retryCount,
			)
			continue
		}
		retryCount = 0

		toolCalls := collectToolCalls(resp)
		if len(toolCalls) == 0 {
			// Final answer.
			content := finalContent(resp)
			conv.Append(llms.MessageFromTextParts(llms.RoleAI, content))
			res.Content = content
			state = StateDone
			break
		}

		if res.ToolIterations >= toolsLimit {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", agentName,
				"status", "tool_budget_exhausted",
				"iterations", res.ToolIterations,
				"input", slices.StringUpto(input, 64),
			)
			metricskey.StatsAgentBudgetExhausted.IncrCounter(1, agentName)
			conv.Append(llms.MessageFromTextParts(llms.RoleAI, BudgetExhaustedAnswer))
			res.Content = BudgetExhaustedAnswer
			res.Outcome = OutcomeBudgetExhausted
			state = StateDone
			break
		}
		res.ToolIterations++
		state = StateAwaitingToolResults

		assistantMsg := llms.MessageFromToolCalls(llms.RoleAI, toolCalls...)
		conv.Append(assistantMsg)
		messageHistory = append(messageHistory, assistantMsg)

		responses, notFound, err := a.executeToolCalls(ctx, cfg, toolCalls)
		if err != nil {
			return nil, err
		}
		for _, tr := range responses {
			msg := llms.MessageFromToolResponse(llms.RoleTool, tr)
			conv.Append(msg)
			messageHistory = append(messageHistory, msg)
		}

		if notFound == len(toolCalls) {
			consecutiveNotFound++
			if consecutiveNotFound >= 3 {
				return nil, errors.Newf("agent %s: the number of not found tools is exceeded", agentName)
			}
		} else {
			consecutiveNotFound = 0
		}
		state = StateAwaitingReasoning
	}

	if cfg.Store != nil {
		// Only the question and the closing answer are carried across runs,
		// tool plumbing is not replayed.
		_ = cfg.Store.Add(ctx,
			llms.MessageFromTextParts(llms.RoleHuman, input),
			llms.MessageFromTextParts(llms.RoleAI, res.Content),
		)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", agentName,
		"outcome", string(res.Outcome),
		"tool_iterations", res.ToolIterations,
		"messages", conv.Len(),
	)

	return res, nil
}

func (a *Agent) closeCancelled(ctx context.Context, conv *chatmodel.Conversation, res *Result) {
	metricskey.StatsAgentRunsCancelled.IncrCounter(1, a.name)
	logger.ContextKV(ctx, xlog.INFO,
		"agent", a.name,
		"status", "run_cancelled",
		"tool_iterations", res.ToolIterations,
	)
	conv.Append(llms.MessageFromTextParts(llms.RoleAI, CancelledAnswer))
	res.Content = CancelledAnswer
	res.Outcome = OutcomeCancelled
}

// executeToolCalls runs the batch concurrently and returns one response per
// call, in request order.
func (a *Agent) executeToolCalls(ctx context.Context, cfg *Config, toolCalls []llms.ToolCall) ([]llms.ToolCallResponse, int, error) {
	type toolCallResult struct {
		toolCall llms.ToolCall
		response string
		err      error
		notFound bool
		index    int
	}

	resultChan := make(chan toolCallResult, len(toolCalls))

	var wg sync.WaitGroup
	wg.Add(len(toolCalls))

	for i, toolCall := range toolCalls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			toolName := tc.FunctionCall.Name
			toolArgs := tc.FunctionCall.Arguments

			// use lowercase for the key
			tool := a.toolsByName[strings.ToLower(toolName)]
			if tool == nil {
				metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
				if cfg.CallbackHandler != nil {
					cfg.CallbackHandler.OnToolNotFound(ctx, a, toolName)
				}

				availableTools := strings.Join(a.toolsNames, ", ")
				logger.ContextKV(ctx, xlog.WARNING,
					"agent", a.name,
					"status", "tool_not_found",
					"tool_name", toolName,
					"available_tools", availableTools,
				)

				resultChan <- toolCallResult{
					toolCall: tc,
					response: fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, availableTools),
					notFound: true,
					index:    index,
				}
				return
			}

			if cfg.CallbackHandler != nil {
				cfg.CallbackHandler.OnToolStart(ctx, tool, toolArgs)
			}

			started := time.Now()
			res, err := tool.Call(ctx, toolArgs)
			metricskey.PerfToolCall.MeasureSince(started, toolName)

			if err != nil {
				metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
				if cfg.CallbackHandler != nil {
					cfg.CallbackHandler.OnToolError(ctx, tool, toolArgs, err)
				}
				resultChan <- toolCallResult{
					toolCall: tc,
					err:      err,
					index:    index,
				}
				return
			}
			metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)

			if cfg.CallbackHandler != nil {
				cfg.CallbackHandler.OnToolEnd(ctx, tool, toolArgs, res)
			}

			resultChan <- toolCallResult{
				toolCall: tc,
				response: res,
				index:    index,
			}
		}(i, toolCall)
	}

	wg.Wait()
	close(resultChan)

	// Re-index results by request position.
	results := make([]toolCallResult, len(toolCalls))
	for result := range resultChan {
		if result.index >= 0 && result.index < len(results) {
			results[result.index] = result
		}
	}

	notFound := 0
	responses := make([]llms.ToolCallResponse, 0, len(toolCalls))
	for _, result := range results {
		if result.notFound {
			notFound++
		}

		var content string
		if result.err != nil {
			if errors.Is(result.err, tools.ErrUnavailable) {
				// Transport is gone, there is nothing useful to feed back
				// to the model.
				return nil, notFound, errors.WithMessagef(result.err, "tool %s", result.toolCall.FunctionCall.Name)
			}
			content = fmt.Sprintf("Tool call failed: %s", result.err.Error())
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"status", "tool_call_failed",
				"tool", result.toolCall.FunctionCall.Name,
				"err", result.err.Error(),
			)
		} else {
			content = result.response
		}

		responses = append(responses, llms.ToolCallResponse{
			ToolCallID: result.toolCall.ID,
			Name:       result.toolCall.FunctionCall.Name,
			Content:    content,
		})
	}

	return responses, notFound, nil
}

// collectToolCalls gathers the tool calls from all choices, assigning
// fallback ids so every call can be matched to its result.
func collectToolCalls(resp *llms.ContentResponse) []llms.ToolCall {
	var toolCalls []llms.ToolCall
	for _, choice := range resp.Choices {
		for i, toolCall := range choice.ToolCalls {
			if toolCall.FunctionCall == nil {
				continue
			}
			if toolCall.ID == "" {
				toolCall.ID = fmt.Sprintf("%s_%d", toolCall.FunctionCall.Name, i)
			}
			toolCall.Type = values.StringsCoalesce(toolCall.Type, "function")
			toolCalls = append(toolCalls, toolCall)
		}
	}
	return toolCalls
}

func finalContent(resp *llms.ContentResponse) string {
	if len(resp.Choices) == 1 {
		return resp.Choices[0].Content
	}
	var combined strings.Builder
	for i, choice := range resp.Choices {
		if i > 0 {
			combined.WriteString("\n\n")
		}
		combined.WriteString(choice.Content)
	}
	return combined.String()
}
