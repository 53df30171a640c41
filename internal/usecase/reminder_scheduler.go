package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/domain/ports/repository"
	"dispatch-bot/internal/infra/metrics"
)

// Job handling resolutions, also used as metric labels.
const (
	ReminderMissing   = "missing"
	ReminderStale     = "stale"
	ReminderInactive  = "inactive"
	ReminderSent      = "sent"
	ReminderDuplicate = "duplicate"
	ReminderCompleted = "completed"
)

// MutationProcessor applies a mutation immediately.
type MutationProcessor interface {
	Process(ctx context.Context, m model.Mutation) (*model.MutationOutcome, error)
}

// ReminderScheduler keeps at most one pending delayed job per plan, tied to
// the plan's current reminder stage, and handles fired jobs.
type ReminderScheduler struct {
	jobs     adapter.ReminderJobQueue
	plans    repository.ExecutorPlanRepository
	composer *MessageComposer
	sender   adapter.MessageSender
	backlog  *MutationBacklog
	direct   MutationProcessor
	now      func() time.Time
	log      *zerolog.Logger

	disabledOnce sync.Once
}

// NewReminderScheduler builds the scheduler. A nil jobs queue disables it:
// every scheduling call becomes a no-op and the fact is logged once.
func NewReminderScheduler(
	jobs adapter.ReminderJobQueue,
	plans repository.ExecutorPlanRepository,
	composer *MessageComposer,
	sender adapter.MessageSender,
	backlog *MutationBacklog,
	logger *zerolog.Logger,
) *ReminderScheduler {
	if composer == nil {
		composer = NewMessageComposer(nil)
	}
	sLog := logger.With().Str("component", "ReminderScheduler").Logger()
	return &ReminderScheduler{
		jobs:     jobs,
		plans:    plans,
		composer: composer,
		sender:   sender,
		backlog:  backlog,
		now:      time.Now,
		log:      &sLog,
	}
}

// WithClock overrides the time source.
func (s *ReminderScheduler) WithClock(now func() time.Time) *ReminderScheduler {
	s.now = now
	return s
}

// WithDirectApply sets the processor used for the completion transition when
// no durable backlog is configured.
func (s *ReminderScheduler) WithDirectApply(p MutationProcessor) *ReminderScheduler {
	s.direct = p
	return s
}

func (s *ReminderScheduler) Enabled() bool { return s != nil && s.jobs != nil }

func (s *ReminderScheduler) reportDisabled() {
	s.disabledOnce.Do(func() {
		s.log.Warn().Msg("delayed job backend is not configured; reminders are disabled")
	})
}

// Reschedule drops every stage job of the plan and, if the plan still needs
// a reminder, schedules exactly one job for its current stage.
func (s *ReminderScheduler) Reschedule(ctx context.Context, plan *model.ExecutorPlan) error {
	if plan == nil {
		return nil
	}
	if !s.Enabled() {
		s.reportDisabled()
		return nil
	}
	if err := s.removeAll(ctx, plan.ID); err != nil {
		return err
	}
	if !plan.NeedsReminder() {
		return nil
	}

	due, _ := model.StageDueAt(plan.EndsAt, plan.ReminderIndex)
	delay := due.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	job := model.ReminderJob{PlanID: plan.ID, ReminderIndex: plan.ReminderIndex}
	if err := s.jobs.Schedule(ctx, job, delay); err != nil {
		return fmt.Errorf("schedule reminder %s: %w", job.ID(), err)
	}
	s.log.Debug().
		Int64("plan_id", plan.ID).
		Str("stage", model.StageLabel(plan.ReminderIndex)).
		Time("due_at", due).
		Msg("reminder scheduled")
	return nil
}

// Cancel removes every pending stage job of a plan.
func (s *ReminderScheduler) Cancel(ctx context.Context, planID int64) error {
	if !s.Enabled() {
		s.reportDisabled()
		return nil
	}
	return s.removeAll(ctx, planID)
}

func (s *ReminderScheduler) removeAll(ctx context.Context, planID int64) error {
	for i := range model.ReminderStages {
		if err := s.jobs.Remove(ctx, model.ReminderJobID(planID, i)); err != nil {
			return fmt.Errorf("remove reminder %s: %w", model.ReminderJobID(planID, i), err)
		}
	}
	return nil
}

// OnMutationOutcome keeps the job set in line with the store after a mutation.
func (s *ReminderScheduler) OnMutationOutcome(ctx context.Context, out *model.MutationOutcome) error {
	if out == nil {
		return nil
	}
	switch out.Kind {
	case model.OutcomeCreated, model.OutcomeUpdated:
		return s.Reschedule(ctx, out.Plan)
	case model.OutcomeDeleted:
		return s.Cancel(ctx, out.PlanID)
	}
	return nil
}

// Rehydrate reschedules every active or blocked plan. It is run on start so
// the delayed-job backend matches the store after a restart.
func (s *ReminderScheduler) Rehydrate(ctx context.Context) (int, error) {
	if !s.Enabled() {
		s.reportDisabled()
		return 0, nil
	}
	plans, err := s.plans.ListForScheduling(ctx, repository.NoTX)
	if err != nil {
		return 0, fmt.Errorf("list plans for scheduling: %w", err)
	}
	n := 0
	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.Reschedule(ctx, p); err != nil {
			s.log.Error().Err(err).Int64("plan_id", p.ID).Msg("rehydrate reschedule failed")
			continue
		}
		n++
	}
	s.log.Info().Int("plans", n).Msg("reminder schedule rehydrated")
	return n, nil
}

// HandleJob runs one fired reminder job and reports how it was resolved.
// A returned error means the job should be retried.
func (s *ReminderScheduler) HandleJob(ctx context.Context, job model.ReminderJob) (string, error) {
	res, err := s.handleJob(ctx, job)
	if err != nil {
		metrics.IncReminderRun("error")
		return "", err
	}
	metrics.IncReminderRun(res)
	return res, nil
}

func (s *ReminderScheduler) handleJob(ctx context.Context, job model.ReminderJob) (string, error) {
	log := s.log.With().Int64("plan_id", job.PlanID).Int("reminder_index", job.ReminderIndex).Logger()

	plan, err := s.plans.FindByID(ctx, repository.NoTX, job.PlanID)
	if errors.Is(err, domain.ErrNotFound) {
		if err := s.Cancel(ctx, job.PlanID); err != nil {
			log.Warn().Err(err).Msg("purge jobs of missing plan")
		}
		return ReminderMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("load plan: %w", err)
	}

	if plan.ReminderIndex != job.ReminderIndex {
		log.Debug().Int("current_index", plan.ReminderIndex).Msg("stale reminder job")
		// A retried job whose completion submit failed lands here.
		if plan.Status == model.PlanStatusActive && plan.ReminderIndex >= len(model.ReminderStages) {
			return ReminderCompleted, s.complete(ctx, plan.ID)
		}
		return ReminderStale, s.Reschedule(ctx, plan)
	}
	if !plan.NeedsReminder() {
		return ReminderInactive, s.Reschedule(ctx, plan)
	}

	stage := model.StageLabel(job.ReminderIndex)
	s.deliver(ctx, &log, plan, stage)

	updated, err := s.plans.AdvanceReminder(ctx, repository.NoTX, plan.ID, job.ReminderIndex, s.now())
	if err != nil {
		return "", fmt.Errorf("advance reminder: %w", err)
	}
	if updated == nil {
		log.Info().Msg("reminder stage already advanced")
		return ReminderDuplicate, nil
	}

	if updated.ReminderIndex < len(model.ReminderStages) {
		return ReminderSent, s.Reschedule(ctx, updated)
	}
	if err := s.complete(ctx, updated.ID); err != nil {
		return "", err
	}
	log.Info().Msg("reminder campaign exhausted, completion submitted")
	return ReminderCompleted, nil
}

// deliver never fails the job: a lost reminder is not retried.
func (s *ReminderScheduler) deliver(ctx context.Context, log *zerolog.Logger, plan *model.ExecutorPlan, stage string) {
	if s.sender == nil {
		metrics.IncReminderSent(stage, "skipped")
		return
	}
	text := s.composer.ReminderMessage(plan, plan.ReminderIndex)
	if err := s.sender.Send(ctx, plan.ChatID, plan.ThreadID, text, ReminderKeyboard(plan.ID)); err != nil {
		metrics.IncReminderSent(stage, "failed")
		log.Warn().Err(err).Str("stage", stage).Msg("reminder delivery failed")
		return
	}
	metrics.IncReminderSent(stage, "ok")
}

func (s *ReminderScheduler) complete(ctx context.Context, planID int64) error {
	m := model.SetPlanStatus{ID: planID, Status: model.PlanStatusCompleted}
	err := s.backlog.Enqueue(ctx, m)
	if errors.Is(err, domain.ErrBacklogUnavailable) && s.direct != nil {
		_, err = s.direct.Process(ctx, m)
	}
	if err != nil {
		return fmt.Errorf("submit completion: %w", err)
	}
	return nil
}
