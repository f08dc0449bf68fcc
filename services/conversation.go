// services/conversation.go
package services

import (
	"context"
	"sync"

	"dnd-mplus-bot/models"

	"go.uber.org/zap"
)

// Field is one text input of a form prompt.
type Field struct {
	ID          string
	Label       string
	Placeholder string
	Value       string // prefilled answer
	Required    bool
	Paragraph   bool
	MaxLength   int
}

// Conversation is the chat side of one interaction. Every Ask/Choose/Confirm
// blocks until the user answers and returns an error wrapping
// models.ErrCancelled when they dismiss the prompt or it expires.
type Conversation interface {
	User() models.UserIdentity
	// Notify sends an intermediate message.
	Notify(ctx context.Context, msg string) error
	AskForm(ctx context.Context, title string, fields []Field) (map[string]string, error)
	Choose(ctx context.Context, prompt string, options []string) (string, error)
	Confirm(ctx context.Context, prompt string) (bool, error)
	// Respond sends the final confirmation or error of the interaction.
	Respond(ctx context.Context, msg string) error
	// Responded reports whether a final response already went out.
	Responded() bool
}

// replyOnce sends the final response of an interaction at most once.
type replyOnce struct {
	conv   Conversation
	logger *zap.Logger

	mu   sync.Mutex
	sent bool
}

func newReplyOnce(conv Conversation, logger *zap.Logger) *replyOnce {
	return &replyOnce{conv: conv, logger: logger}
}

func (r *replyOnce) send(ctx context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent || r.conv.Responded() {
		r.logger.Debug("Skipping duplicate final response", zap.String("user_id", r.conv.User().ID))
		return
	}
	r.sent = true
	if err := r.conv.Respond(ctx, msg); err != nil {
		r.logger.Warn("Failed to send final response",
			zap.String("user_id", r.conv.User().ID), zap.Error(err))
	}
}
