// Package store keeps conversation transcripts between agent runs,
// keyed by the chat ID carried in the context.
package store

import (
	"context"

	"github.com/effective-security/reagent/pkg/llms"
)

// MessageStore persists conversation messages per chat.
// The chat ID is taken from the context, see chatmodel.WithChatContext.
type MessageStore interface {
	// Messages returns the stored transcript of the chat.
	Messages(ctx context.Context) ([]llms.Message, error)
	// Add appends messages to the transcript of the chat.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the transcript of the chat.
	Reset(ctx context.Context) error
}
