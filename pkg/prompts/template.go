package prompts

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/llms"
)

// FormatPrompter is the interface for formatting a map of values into a prompt.
type FormatPrompter interface {
	FormatPrompt(values map[string]any) (llms.PromptValue, error)
	GetInputVariables() []string
}

// MessageFormatter is the interface for formatting a map of values into a list
// of messages.
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// RenderTemplate renders a Go text/template with the sprig function map.
// Every declared input variable must be present in values.
func RenderTemplate(tmpl string, inputVariables []string, values map[string]any) (string, error) {
	for _, v := range inputVariables {
		if _, ok := values[v]; !ok {
			return "", errors.Newf("missing value for input variable: %s", v)
		}
	}

	t, err := template.New("prompt").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, values); err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}
	return buf.String(), nil
}

// MessagePromptTemplate formats one chat message with a fixed role.
type MessagePromptTemplate struct {
	role           llms.Role
	template       string
	inputVariables []string
}

var _ MessageFormatter = (*MessagePromptTemplate)(nil)

// NewSystemMessagePromptTemplate creates a template producing a system message.
func NewSystemMessagePromptTemplate(tmpl string, inputVariables []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{role: llms.RoleSystem, template: tmpl, inputVariables: inputVariables}
}

// NewHumanMessagePromptTemplate creates a template producing a human message.
func NewHumanMessagePromptTemplate(tmpl string, inputVariables []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{role: llms.RoleHuman, template: tmpl, inputVariables: inputVariables}
}

// NewAIMessagePromptTemplate creates a template producing an AI message.
func NewAIMessagePromptTemplate(tmpl string, inputVariables []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{role: llms.RoleAI, template: tmpl, inputVariables: inputVariables}
}

func (p *MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	text, err := RenderTemplate(p.template, p.inputVariables, values)
	if err != nil {
		return nil, err
	}
	return []llms.Message{llms.MessageFromTextParts(p.role, text)}, nil
}

func (p *MessagePromptTemplate) GetInputVariables() []string {
	return p.inputVariables
}

// ChatPromptTemplate is a sequence of message templates rendered together.
type ChatPromptTemplate struct {
	formatters []MessageFormatter
}

var _ FormatPrompter = (*ChatPromptTemplate)(nil)

// NewChatPromptTemplate creates a chat prompt from message formatters.
func NewChatPromptTemplate(formatters []MessageFormatter) *ChatPromptTemplate {
	return &ChatPromptTemplate{formatters: formatters}
}

func (p *ChatPromptTemplate) FormatPrompt(values map[string]any) (llms.PromptValue, error) {
	var messages ChatPromptValue
	for _, f := range p.formatters {
		msgs, err := f.FormatMessages(values)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msgs...)
	}
	return messages, nil
}

func (p *ChatPromptTemplate) GetInputVariables() []string {
	var vars []string
	seen := map[string]bool{}
	for _, f := range p.formatters {
		for _, v := range f.GetInputVariables() {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// NewSystemPrompt is a shorthand for a chat prompt with a single system message.
func NewSystemPrompt(tmpl string, inputVariables []string) *ChatPromptTemplate {
	return NewChatPromptTemplate([]MessageFormatter{
		NewSystemMessagePromptTemplate(tmpl, inputVariables),
	})
}
