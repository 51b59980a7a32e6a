package chatmodel

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/llms"
)

// ErrEmptyQuestion is returned when a conversation is seeded without a question.
var ErrEmptyQuestion = errors.New("conversation requires a non-empty question")

// Conversation is an append-only transcript of one agent run.
// It always starts with exactly one Human message carrying the question;
// messages are never edited or removed once appended.
type Conversation struct {
	messages []llms.Message
}

// NewConversation creates a transcript seeded with the Human question.
func NewConversation(question string) (*Conversation, error) {
	if question == "" {
		return nil, errors.WithStack(ErrEmptyQuestion)
	}
	return &Conversation{
		messages: []llms.Message{
			llms.MessageFromTextParts(llms.RoleHuman, question),
		},
	}, nil
}

// Append adds messages to the end of the transcript.
func (c *Conversation) Append(msgs ...llms.Message) {
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []llms.Message {
	out := make([]llms.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Question returns the text of the seeding Human message.
func (c *Conversation) Question() string {
	if len(c.messages) == 0 {
		return ""
	}
	return strings.TrimRight(c.messages[0].GetContent(), "\n")
}

// Last returns the last message of the transcript.
func (c *Conversation) Last() llms.Message {
	if len(c.messages) == 0 {
		return llms.Message{}
	}
	return c.messages[len(c.messages)-1]
}
