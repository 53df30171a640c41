// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"dispatch-bot/internal/application"
	"dispatch-bot/internal/config"
	"dispatch-bot/internal/domain/ports/adapter"
	tele "dispatch-bot/internal/infra/adapters/telegram"
	"dispatch-bot/internal/infra/api"
	pg "dispatch-bot/internal/infra/db/postgres"
	"dispatch-bot/internal/infra/logging"
	"dispatch-bot/internal/infra/metrics"
	red "dispatch-bot/internal/infra/redis"
	"dispatch-bot/internal/infra/sched"
	"dispatch-bot/internal/infra/worker"
	"dispatch-bot/internal/usecase"
)

// set via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	loc, err := time.LoadLocation(cfg.Bot.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot timezone")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
		logger.Info().Msg("migrations applied")
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	planRepo := pg.NewExecutorPlanRepo(pool)
	blockRepo := pg.NewExecutorBlockRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var (
		backlogStore adapter.MutationBacklog
		jobs         adapter.ReminderJobQueue
		access       adapter.AccessRefresher
		locker       adapter.Locker
		rateLimiter  tele.RateLimiter
		reminderJobs *red.ReminderJobs
	)
	if cfg.Redis.Enabled() {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		reminderJobs = red.NewReminderJobs(redisClient)
		backlogStore = red.NewMutationBacklog(redisClient)
		jobs = reminderJobs
		access = red.NewAccessCache(redisClient)
		locker = red.NewLocker(redisClient)
		rateLimiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis is not configured: no mutation backlog, reminders disabled")
	}

	// ---- Telegram ----
	composer := usecase.NewMessageComposer(loc)
	policy := usecase.NewDurationPolicy(cfg.Plans)
	backlog := usecase.NewMutationBacklog(backlogStore)

	var (
		botAPI *tgbotapi.BotAPI
		sender adapter.MessageSender
	)
	if cfg.Bot.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot api")
		}
		sender = tele.NewSender(botAPI)
	} else {
		logger.Warn().Msg("bot.token is empty: messages are only logged")
		sender = tele.NewNoopSender(logger)
	}

	// ---- Use cases ----
	scheduler := usecase.NewReminderScheduler(jobs, planRepo, composer, sender, backlog, logger)
	queue := usecase.NewMutationQueue(planRepo, blockRepo, txm, policy, backlog, access, scheduler, logger)
	if locker != nil {
		queue.WithLocker(locker)
	}
	scheduler.WithDirectApply(queue)
	planUC := usecase.NewExecutorPlanUseCase(queue, scheduler, planRepo, blockRepo, composer, policy, logger)
	facade := application.NewPlanFacade(planUC, loc)

	if n, err := scheduler.Rehydrate(ctx); err != nil {
		logger.Error().Err(err).Msg("reminder rehydration failed")
	} else {
		logger.Info().Int("plans", n).Msg("reminders rehydrated")
	}

	// ---- Workers ----
	// The pool outlives ctx so that claimed jobs finish during shutdown.
	jobPool := worker.NewPool(cfg.Scheduler.Workers, logger)
	jobPool.Start(context.Background())
	defer jobPool.Stop()

	if reminderJobs != nil {
		rw := sched.NewReminderWorker(cfg.Scheduler.PollInterval, cfg.Scheduler.ClaimBatch, cfg.Scheduler.RetryDelay, reminderJobs, scheduler, jobPool, logger)
		go runWorker(ctx, logger, "reminder worker", rw.Run)
	}
	if backlog.Available() {
		bw := sched.NewBacklogWorker(cfg.Scheduler.FlushInterval, planUC, logger)
		go runWorker(ctx, logger, "backlog worker", bw.Run)
	}

	// ---- Moderator bot ----
	var bot *tele.ModeratorBot
	if botAPI != nil {
		bot, err = tele.NewModeratorBot(&cfg.Bot, botAPI, facade, rateLimiter, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("moderator bot")
		}
		go runWorker(ctx, logger, "moderator bot", bot.StartPolling)
	}

	// ---- Admin API ----
	srv := api.NewServer(planUC, api.NewAuthenticator(cfg.Admin.JWTSecret, 12*time.Hour), logger)
	go func() {
		if err := srv.Start(cfg.Admin.Port); err != nil {
			logger.Error().Err(err).Msg("admin api stopped")
			cancel()
		}
	}()

	logger.Info().Str("version", version).Msg("dispatch bot started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()
	if bot != nil {
		bot.StopPolling()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin api shutdown")
	}
}

func runWorker(ctx context.Context, logger *zerolog.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str("worker", name).Msg("worker stopped")
	}
}
