package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dispatch-bot/internal/infra/logging"
	"dispatch-bot/internal/infra/metrics"
	"dispatch-bot/internal/usecase"
)

type cbHandler func(ctx context.Context, query *tgbotapi.CallbackQuery, data string) (string, error)

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Prefix-match callbacks
func (r *ModeratorBot) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: usecase.MuteCallbackPrefix, Fn: r.planToggleCBRoute},
		{Prefix: usecase.UnmuteCallbackPrefix, Fn: r.planToggleCBRoute},
	}
}

func (r *ModeratorBot) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	ctx = logging.WithTgID(ctx, query.From.ID)
	data := strings.TrimSpace(query.Data)

	answer := ""
	// Stop telegram spinner when we return
	defer func() {
		if err := r.sender.answerCallback(query.ID, answer); err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Msg("answer callback")
		}
	}()

	if !r.isModerator(query.From.ID) {
		metrics.IncModeratorCommand("cb:plan", "unauthorized")
		answer = replyUnauthorized
		return nil
	}
	if !r.allowed(ctx, query.From.ID, "cb:plan") {
		answer = replyRateLimited
		return nil
	}

	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			metrics.IncModeratorCommand("cb:plan", "authorized")
			text, err := pr.Fn(ctx, query, data)
			answer = text
			return err
		}
	}
	return errors.New("unknown callback data")
}

// planToggleCBRoute serves the mute/unmute buttons of reminders and plan cards.
func (r *ModeratorBot) planToggleCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, data string) (string, error) {
	rep, _, err := r.facade.HandleCallback(ctx, data)
	if err != nil {
		return rep.Text, err
	}
	if rep.CardFor != 0 {
		if strings.HasPrefix(data, usecase.MuteCallbackPrefix) {
			return "🔕 Reminders muted", nil
		}
		return "🔔 Reminders on", nil
	}
	return rep.Text, nil
}
