package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain/ports/adapter"
)

var _ adapter.MessageSender = (*NoopSender)(nil)

// NoopSender logs messages instead of sending them. Used when no bot token is
// configured.
type NoopSender struct {
	log *zerolog.Logger
}

func NewNoopSender(logger *zerolog.Logger) *NoopSender {
	l := logger.With().Str("component", "NoopSender").Logger()
	return &NoopSender{log: &l}
}

func (s *NoopSender) Send(ctx context.Context, chatID int64, threadID *int, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := s.log.Info().Int64("chat_id", chatID).Str("text", text).Int("button_rows", len(rows))
	if threadID != nil {
		ev = ev.Int("thread_id", *threadID)
	}
	ev.Msg("[noop-telegram] message")
	return nil
}
