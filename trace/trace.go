// Package trace inspects a finished conversation transcript and produces a
// human-readable summary of the tool activity.
package trace

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/llms"
)

// ErrIncomplete is returned when a tool call has no matching result before
// the next Assistant turn, or a result has no corresponding call.
var ErrIncomplete = errors.New("incomplete trace")

// ToolInvocation is one tool call with its resolved result.
type ToolInvocation struct {
	Name      string
	Arguments string
	Result    string
}

// Summary is the digest of one conversation transcript.
type Summary struct {
	ToolInvocations []ToolInvocation
	FinalAnswer     string
	ToolWasUsed     bool
}

// Summarize walks the transcript and pairs every tool call with its result.
// It is deterministic and does not modify the input.
func Summarize(msgs []llms.Message) (*Summary, error) {
	sum := &Summary{}
	// tool call id -> position in ToolInvocations, removed once resolved
	pending := make(map[string]int)

	for _, msg := range msgs {
		switch msg.Role {
		case llms.RoleAI:
			if len(pending) > 0 {
				return nil, errors.WithMessagef(ErrIncomplete, "%d tool calls unresolved before the next assistant turn", len(pending))
			}
			calls := msg.ToolCalls()
			if len(calls) == 0 {
				sum.FinalAnswer = strings.TrimRight(msg.GetContent(), "\n")
				continue
			}
			for _, tc := range calls {
				if tc.FunctionCall == nil {
					return nil, errors.WithMessagef(ErrIncomplete, "tool call %s carries no function", tc.ID)
				}
				if _, ok := pending[tc.ID]; ok {
					return nil, errors.WithMessagef(ErrIncomplete, "duplicate tool call id %s", tc.ID)
				}
				sum.ToolInvocations = append(sum.ToolInvocations, ToolInvocation{
					Name:      tc.FunctionCall.Name,
					Arguments: tc.FunctionCall.Arguments,
				})
				pending[tc.ID] = len(sum.ToolInvocations) - 1
			}
		case llms.RoleTool:
			for _, tr := range msg.ToolResponses() {
				idx, ok := pending[tr.ToolCallID]
				if !ok {
					return nil, errors.WithMessagef(ErrIncomplete, "tool result %s has no matching call", tr.ToolCallID)
				}
				sum.ToolInvocations[idx].Result = tr.Content
				delete(pending, tr.ToolCallID)
			}
		}
	}

	if len(pending) > 0 {
		return nil, errors.WithMessagef(ErrIncomplete, "%d tool calls unresolved at the end of the transcript", len(pending))
	}

	sum.ToolWasUsed = len(sum.ToolInvocations) > 0
	return sum, nil
}

// String renders the summary as a report.
func (s *Summary) String() string {
	var b strings.Builder
	if !s.ToolWasUsed {
		b.WriteString("No tool was used.\n")
	}
	for _, inv := range s.ToolInvocations {
		fmt.Fprintf(&b, "Tool: %s\n", inv.Name)
		fmt.Fprintf(&b, "Arguments: %s\n", inv.Arguments)
		fmt.Fprintf(&b, "Result: %s\n\n", inv.Result)
	}
	fmt.Fprintf(&b, "Final answer: %s\n", s.FinalAnswer)
	return b.String()
}
