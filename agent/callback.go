package agent

import (
	"context"

	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/tools"
)

// IAgent is the surface callbacks see of a running agent.
type IAgent interface {
	// Name returns the name of the Agent.
	Name() string
	// Description returns the description of the Agent.
	Description() string
}

// Callback receives run, reasoning step and tool events.
type Callback interface {
	tools.Callback
	OnAgentStart(ctx context.Context, agent IAgent, input string)
	OnAgentEnd(ctx context.Context, agent IAgent, input string, result *Result)
	OnAgentError(ctx context.Context, agent IAgent, input string, err error)
	OnAgentLLMCallStart(ctx context.Context, agent IAgent, llm llms.Model, messages []llms.Message)
	OnAgentLLMCallEnd(ctx context.Context, agent IAgent, llm llms.Model, resp *llms.ContentResponse)
	OnToolNotFound(ctx context.Context, agent IAgent, toolName string)
}
