// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// MessageSender delivers a text message to a chat (and optional forum thread).
// It is the only side effect the plan engine pushes into the chat layer.
type MessageSender interface {
	Send(ctx context.Context, chatID int64, threadID *int, text string, rows [][]InlineButton) error
}
