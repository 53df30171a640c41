package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/infra/logging"
	"dispatch-bot/internal/infra/worker"
)

// ReminderQueue is the claiming side of the delayed reminder queue.
type ReminderQueue interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.ReminderJob, error)
	Retry(ctx context.Context, job model.ReminderJob, delay time.Duration) error
}

type ReminderHandler interface {
	HandleJob(ctx context.Context, job model.ReminderJob) (string, error)
}

// ReminderWorker polls for due reminder jobs and runs them on the pool. A job
// whose handler fails is put back with RetryDelay.
type ReminderWorker struct {
	interval   time.Duration
	batch      int
	retryDelay time.Duration
	queue      ReminderQueue
	handler    ReminderHandler
	pool       *worker.Pool
	now        func() time.Time
	log        *zerolog.Logger
}

// NewReminderWorker builds the worker. With a nil pool jobs run inline on the
// polling goroutine.
func NewReminderWorker(interval time.Duration, batch int, retryDelay time.Duration, queue ReminderQueue, handler ReminderHandler, pool *worker.Pool, logger *zerolog.Logger) *ReminderWorker {
	compLog := logger.With().Str("component", "ReminderWorker").Logger()
	if batch <= 0 {
		batch = 50
	}
	return &ReminderWorker{
		interval:   interval,
		batch:      batch,
		retryDelay: retryDelay,
		queue:      queue,
		handler:    handler,
		pool:       pool,
		now:        time.Now,
		log:        &compLog,
	}
}

func (w *ReminderWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reminder worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reminder worker")
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := w.Tick(ctx)
				if err != nil {
					w.log.Error().Err(err).Msg("claim due reminders")
				}
				// a full batch means more may already be due
				if err != nil || n < w.batch || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// Tick claims one batch of due jobs and dispatches them. It returns the
// number of jobs claimed.
func (w *ReminderWorker) Tick(ctx context.Context) (int, error) {
	jobs, err := w.queue.ClaimDue(ctx, w.now(), w.batch)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		job := job
		if w.pool == nil {
			w.runJob(ctx, job)
			continue
		}
		if err := w.pool.Submit(func(ctx context.Context) error {
			w.runJob(ctx, job)
			return nil
		}); err != nil {
			w.log.Warn().Err(err).Str("job", job.ID()).Msg("worker pool rejected reminder")
			w.retry(ctx, job)
		}
	}
	return len(jobs), nil
}

func (w *ReminderWorker) runJob(ctx context.Context, job model.ReminderJob) {
	ctx = logging.WithJobID(logging.WithPlanID(ctx, job.PlanID), job.ID())
	log := logging.With(ctx, w.log)
	res, err := w.handler.HandleJob(ctx, job)
	if err != nil {
		log.Error().Err(err).Msg("reminder job failed")
		w.retry(ctx, job)
		return
	}
	log.Debug().Str("resolution", res).Msg("reminder job handled")
}

func (w *ReminderWorker) retry(ctx context.Context, job model.ReminderJob) {
	if err := w.queue.Retry(context.WithoutCancel(ctx), job, w.retryDelay); err != nil {
		w.log.Error().Err(err).Str("job", job.ID()).Msg("requeue reminder")
	}
}
