package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"dispatch-bot/internal/application"
	"dispatch-bot/internal/config"
	"dispatch-bot/internal/infra/logging"
	"dispatch-bot/internal/infra/metrics"
	red "dispatch-bot/internal/infra/redis"
)

// RateLimiter is satisfied by redis.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ RateLimiter = (*red.RateLimiter)(nil)

// ModeratorBot polls Telegram updates and serves the plan commands of the
// moderator allow-list.
type ModeratorBot struct {
	api         *tgbotapi.BotAPI
	sender      *Sender
	cfg         *config.BotConfig
	facade      *application.PlanFacade
	rateLimiter RateLimiter

	moderators    map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
	log           *zerolog.Logger
}

// NewModeratorBot wires the bot around an authenticated API client. rateLimiter
// may be nil.
func NewModeratorBot(cfg *config.BotConfig, api *tgbotapi.BotAPI, facade *application.PlanFacade, rateLimiter RateLimiter, logger *zerolog.Logger) (*ModeratorBot, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if api == nil {
		return nil, errors.New("bot api is nil")
	}
	b := newModeratorBot(cfg, api, facade, rateLimiter, logger)
	b.api = api
	return b, nil
}

func newModeratorBot(cfg *config.BotConfig, api requester, facade *application.PlanFacade, rateLimiter RateLimiter, logger *zerolog.Logger) *ModeratorBot {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	mods := map[int64]struct{}{}
	for _, id := range cfg.ModeratorIDs {
		mods[id] = struct{}{}
	}
	botLog := logger.With().Str("component", "ModeratorBot").Logger()
	return &ModeratorBot{
		sender:        &Sender{api: api},
		cfg:           cfg,
		facade:        facade,
		rateLimiter:   rateLimiter,
		moderators:    mods,
		updateWorkers: workers,
		log:           &botLog,
	}
}

// Sender exposes the message sink sharing this bot's API client.
func (r *ModeratorBot) Sender() *Sender { return r.sender }

func (r *ModeratorBot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Error().Err(err).Int("worker", id).Int("update_id", up.UpdateID).Msg("update failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *ModeratorBot) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *ModeratorBot) isModerator(tgID int64) bool {
	_, ok := r.moderators[tgID]
	return ok
}

func (r *ModeratorBot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ctx = logging.WithTraceID(ctx, ulid.Make().String())

	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return nil
	}
	handler, ok := r.commandRoutes()[msg.Command()]
	if !ok {
		return nil
	}
	ctx = logging.WithChatID(logging.WithTgID(ctx, msg.From.ID), msg.Chat.ID)
	return handler(ctx, msg)
}

// allowed applies the per-moderator rate limit; limiter failures let the
// command through.
func (r *ModeratorBot) allowed(ctx context.Context, tgID int64, command string) bool {
	if r.rateLimiter == nil || r.cfg.RateLimit <= 0 {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.ModeratorCommandKey(tgID, command), r.cfg.RateLimit, r.cfg.RateWindow)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limit check failed")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

// reply posts the facade reply into the chat of the command. Plan cards are
// recorded on the plan.
func (r *ModeratorBot) reply(ctx context.Context, chatID int64, rep application.Reply) error {
	msgID, err := r.sender.SendCard(ctx, chatID, nil, rep.Text, rep.Keyboard)
	if err != nil {
		return err
	}
	if rep.CardFor != 0 && msgID != 0 {
		if err := r.facade.PlanUC.AttachCard(ctx, rep.CardFor, chatID, msgID); err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Int64("plan_id", rep.CardFor).Msg("attach plan card")
		}
	}
	return nil
}
