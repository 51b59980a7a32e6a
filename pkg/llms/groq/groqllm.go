// Package groq provides a chat model served by the Groq OpenAI compatible
// chat completions API.
package groq

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/x/values"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

// ErrEmptyResponse is returned when the API returns no choices.
var ErrEmptyResponse = errors.New("no response")

type LLM struct {
	client openai.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new Groq LLM.
func New(opts ...Option) (*LLM, error) {
	o, ropts, err := newClientOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: openai.NewClient(ropts...),
		model:  o.model,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderGroq
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs, err := convertMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(values.StringsCoalesce(opts.Model, o.model)),
		Messages: chatMsgs,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.Seed > 0 {
		params.Seed = openai.Int(int64(opts.Seed))
	}
	if opts.N > 0 {
		params.N = openai.Int(int64(opts.N))
	}
	if opts.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(opts.FrequencyPenalty)
	}
	if opts.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(opts.PresencePenalty)
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: opts.StopWords,
		}
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to convert tool definition")
		}
		params.Tools = append(params.Tools, t)
	}

	switch tc := opts.ToolChoice.(type) {
	case nil:
	case string:
		if tc != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(tc),
			}
		}
	case llms.ToolChoice:
		if tc.Function != nil {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
						Name: tc.Function.Name,
					},
				},
			}
		}
	default:
		return nil, errors.Newf("tool choice %T not supported", opts.ToolChoice)
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create chat completion")
	}
	if len(result.Choices) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
		if len(choices[i].ToolCalls) > 0 {
			choices[i].FuncCall = choices[i].ToolCalls[0].FunctionCall
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func convertMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	chatMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, openai.SystemMessage(textOfParts(mc)))
		case llms.RoleHuman, llms.RoleGeneric:
			chatMsgs = append(chatMsgs, openai.UserMessage(textOfParts(mc)))
		case llms.RoleAI:
			msg, err := assistantMessage(mc)
			if err != nil {
				return nil, err
			}
			chatMsgs = append(chatMsgs, msg)
		case llms.RoleTool:
			if len(mc.Parts) != 1 {
				return nil, errors.Newf("expected exactly one part for role %v, got %d", mc.Role, len(mc.Parts))
			}
			p, ok := mc.Parts[0].(llms.ToolCallResponse)
			if !ok {
				return nil, errors.Newf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
			}
			chatMsgs = append(chatMsgs, openai.ToolMessage(p.Content, p.ToolCallID))
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
		}
	}
	return chatMsgs, nil
}

func assistantMessage(mc llms.Message) (openai.ChatCompletionMessageParamUnion, error) {
	assistant := &openai.ChatCompletionAssistantMessageParam{}

	var text string
	for _, part := range mc.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			text += p.Text
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return openai.ChatCompletionMessageParamUnion{}, errors.Newf("tool call %s carries no function", p.ID)
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: p.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				},
			})
		default:
			return openai.ChatCompletionMessageParamUnion{}, errors.Newf("part %T not supported for role %v", part, mc.Role)
		}
	}
	if text != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}, nil
}

func textOfParts(mc llms.Message) string {
	var text string
	for _, part := range mc.Parts {
		if p, ok := part.(llms.TextContent); ok {
			text += p.Text
		}
	}
	return text
}

// toolFromTool converts an llms.Tool to the API tool definition.
func toolFromTool(t llms.Tool) (openai.ChatCompletionToolUnionParam, error) {
	if t.Type != "function" || t.Function == nil {
		return openai.ChatCompletionToolUnionParam{}, errors.Newf("tool type %q not supported", t.Type)
	}

	fn := shared.FunctionDefinitionParam{
		Name:        t.Function.Name,
		Description: openai.String(t.Function.Description),
	}
	if t.Function.Parameters != nil {
		js, err := json.Marshal(t.Function.Parameters)
		if err != nil {
			return openai.ChatCompletionToolUnionParam{}, errors.Wrap(err, "failed to marshal tool parameters")
		}
		var fnParams shared.FunctionParameters
		if err := json.Unmarshal(js, &fnParams); err != nil {
			return openai.ChatCompletionToolUnionParam{}, errors.Wrap(err, "failed to convert tool parameters")
		}
		fn.Parameters = fnParams
	}
	return openai.ChatCompletionFunctionTool(fn), nil
}
