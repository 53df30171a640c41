package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dispatch-bot/internal/application"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/infra/logging"
	"dispatch-bot/internal/infra/metrics"
)

const (
	replyUnauthorized = "This command is for moderators only."
	replyRateLimited  = "Too many commands. Please try again later."
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// planHandler produces the reply for one plan command.
type planHandler func(ctx context.Context, message *tgbotapi.Message) (application.Reply, error)

// commandRoutes defines all available bot commands and their handlers.
func (r *ModeratorBot) commandRoutes() map[string]commandHandler {
	f := r.facade
	return map[string]commandHandler{
		"help": r.moderatorOnly(func(context.Context, *tgbotapi.Message) (application.Reply, error) {
			return f.Help(), nil
		}),
		"newplan": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleNewPlan(ctx, m.Chat.ID, nil, m.CommandArguments())
		}),
		"plan": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleShow(ctx, m.CommandArguments())
		}),
		"extend": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleExtend(ctx, m.CommandArguments())
		}),
		"block":   r.moderatorOnly(r.statusCommand("block", model.PlanStatusBlocked)),
		"unblock": r.moderatorOnly(r.statusCommand("unblock", model.PlanStatusActive)),
		"cancel":  r.moderatorOnly(r.statusCommand("cancel", model.PlanStatusCancelled)),
		"mute": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleMute(ctx, m.CommandArguments(), true)
		}),
		"unmute": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleMute(ctx, m.CommandArguments(), false)
		}),
		"setstart": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleSetStart(ctx, m.CommandArguments())
		}),
		"comment": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleComment(ctx, m.CommandArguments())
		}),
		"delete": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleDelete(ctx, m.CommandArguments())
		}),
		"blocked": r.moderatorOnly(func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
			return f.HandleBlocked(ctx, m.CommandArguments())
		}),
		"flush": r.moderatorOnly(func(ctx context.Context, _ *tgbotapi.Message) (application.Reply, error) {
			return f.HandleFlush(ctx)
		}),
	}
}

func (r *ModeratorBot) statusCommand(command string, status model.PlanStatus) planHandler {
	return func(ctx context.Context, m *tgbotapi.Message) (application.Reply, error) {
		return r.facade.HandleStatus(ctx, command, status, m.CommandArguments())
	}
}

// moderatorOnly checks the allow-list and the rate limit, then posts the reply.
// Handler errors are logged; the moderator still gets the reply text.
func (r *ModeratorBot) moderatorOnly(next planHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		command := "/" + message.Command()
		if !r.isModerator(message.From.ID) {
			metrics.IncModeratorCommand(command, "unauthorized")
			return r.reply(ctx, message.Chat.ID, application.Reply{Text: replyUnauthorized})
		}
		if !r.allowed(ctx, message.From.ID, command) {
			metrics.IncModeratorCommand(command, "rate_limited")
			return r.reply(ctx, message.Chat.ID, application.Reply{Text: replyRateLimited})
		}
		metrics.IncModeratorCommand(command, "authorized")
		metrics.IncCommandHandled(command)

		rep, err := next(ctx, message)
		if err != nil {
			logging.With(ctx, r.log).Error().Err(err).Str("command", command).Msg("plan command failed")
		}
		if rep.Text == "" {
			return nil
		}
		return r.reply(ctx, message.Chat.ID, rep)
	}
}
