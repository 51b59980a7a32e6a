// Package callbacks provides ready-made agent.Callback implementations.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/reagent/agent"
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ agent.Callback = (*Noop)(nil)
	_ agent.Callback = (*Printer)(nil)
	_ agent.Callback = (*PackageLogger)(nil)
	_ agent.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAgentStart(ctx context.Context, ag agent.IAgent, input string)             {}
func (l *Noop) OnAgentEnd(ctx context.Context, ag agent.IAgent, input string, res *agent.Result) {}
func (l *Noop) OnAgentError(ctx context.Context, ag agent.IAgent, input string, err error)  {}
func (l *Noop) OnAgentLLMCallStart(ctx context.Context, ag agent.IAgent, llm llms.Model, messages []llms.Message) {
}
func (l *Noop) OnAgentLLMCallEnd(ctx context.Context, ag agent.IAgent, llm llms.Model, resp *llms.ContentResponse) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, ag agent.IAgent, toolName string)      {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string)           {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	mode Mode

	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{out: out, mode: mode}
}

func (l *Printer) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, format, args...)
}

func (l *Printer) OnAgentStart(ctx context.Context, ag agent.IAgent, input string) {
	l.printf("Agent Start: %s\nInput: %s\n", ag.Name(), input)
}

func (l *Printer) OnAgentEnd(ctx context.Context, ag agent.IAgent, input string, res *agent.Result) {
	l.printf("Agent End: %s [%s]\n", ag.Name(), res.Outcome)
	if res.Content != "" {
		l.printf("%s\n", res.Content)
	}
}

func (l *Printer) OnAgentError(ctx context.Context, ag agent.IAgent, input string, err error) {
	l.printf("Agent Error: %s: %s\n", ag.Name(), err.Error())
}

func (l *Printer) OnAgentLLMCallStart(ctx context.Context, ag agent.IAgent, llm llms.Model, messages []llms.Message) {
	if l.mode == ModeVerbose {
		l.printf("LLM Call: %s, %d messages\n", llm.GetName(), len(messages))
	}
}

func (l *Printer) OnAgentLLMCallEnd(ctx context.Context, ag agent.IAgent, llm llms.Model, resp *llms.ContentResponse) {
}

func (l *Printer) OnToolNotFound(ctx context.Context, ag agent.IAgent, toolName string) {
	l.printf("Tool Not Found: %s\n", toolName)
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.printf("Tool Start: %s\nInput: %s\n", tool.Name(), input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.printf("Tool End: %s\n", tool.Name())
	if l.mode == ModeVerbose {
		l.printf("Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.printf("Tool Error: %s: %s\n", tool.Name(), err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAgentStart(ctx context.Context, ag agent.IAgent, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_start",
		"agent", ag.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnAgentEnd(ctx context.Context, ag agent.IAgent, input string, res *agent.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_end",
		"agent", ag.Name(),
		"outcome", string(res.Outcome),
		"tool_iterations", res.ToolIterations,
	)
}

func (l *PackageLogger) OnAgentError(ctx context.Context, ag agent.IAgent, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "agent_error",
		"agent", ag.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnAgentLLMCallStart(ctx context.Context, ag agent.IAgent, llm llms.Model, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"agent", ag.Name(),
		"model", llm.GetName(),
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnAgentLLMCallEnd(ctx context.Context, ag agent.IAgent, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"agent", ag.Name(),
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, ag agent.IAgent, toolName string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"agent", ag.Name(),
		"tool", toolName,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output_size", len(output),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []agent.Callback
}

func NewFanout(callbacks ...agent.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback agent.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAgentStart(ctx context.Context, ag agent.IAgent, input string) {
	for _, callback := range l.callbacks {
		callback.OnAgentStart(ctx, ag, input)
	}
}

func (l *Fanout) OnAgentEnd(ctx context.Context, ag agent.IAgent, input string, res *agent.Result) {
	for _, callback := range l.callbacks {
		callback.OnAgentEnd(ctx, ag, input, res)
	}
}

func (l *Fanout) OnAgentError(ctx context.Context, ag agent.IAgent, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnAgentError(ctx, ag, input, err)
	}
}

func (l *Fanout) OnAgentLLMCallStart(ctx context.Context, ag agent.IAgent, llm llms.Model, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAgentLLMCallStart(ctx, ag, llm, messages)
	}
}

func (l *Fanout) OnAgentLLMCallEnd(ctx context.Context, ag agent.IAgent, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnAgentLLMCallEnd(ctx, ag, llm, resp)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, ag agent.IAgent, toolName string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, ag, toolName)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}
