package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/infra/metrics"
)

type BacklogFlusher interface {
	FlushBacklog(ctx context.Context) (applied int, remaining int64, err error)
}

// BacklogWorker drains the mutation backlog on a timer, so queued changes land
// even when no new command arrives.
type BacklogWorker struct {
	interval time.Duration
	flusher  BacklogFlusher
	log      *zerolog.Logger
}

func NewBacklogWorker(interval time.Duration, flusher BacklogFlusher, logger *zerolog.Logger) *BacklogWorker {
	compLog := logger.With().Str("component", "BacklogWorker").Logger()
	return &BacklogWorker{
		interval: interval,
		flusher:  flusher,
		log:      &compLog,
	}
}

func (w *BacklogWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting backlog worker")
	w.runFlush(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping backlog worker")
			return ctx.Err()
		case <-ticker.C:
			w.runFlush(ctx)
		}
	}
}

func (w *BacklogWorker) runFlush(ctx context.Context) {
	applied, remaining, err := w.flusher.FlushBacklog(ctx)
	if err != nil {
		w.log.Error().Err(err).Int("applied", applied).Msg("backlog flush failed")
		return
	}
	metrics.SetBacklogDepth(remaining)
	if applied > 0 {
		w.log.Info().Int("applied", applied).Int64("remaining", remaining).Msg("backlog flushed")
	}
}
