// File: internal/usecase/executor_plan_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/repository"
)

// CommandResult tells the command surface what happened to a submitted mutation.
type CommandResult struct {
	// Outcome is nil when the mutation was queued or its target plan was gone.
	Outcome *model.MutationOutcome
	// Queued means the mutation sits in the backlog and will apply later.
	Queued bool
	// RemindersDisabled is set when the outcome would have scheduled reminders
	// but no delayed-job backend is configured.
	RemindersDisabled bool
}

// NotFound reports a live apply that matched no plan.
func (r *CommandResult) NotFound() bool {
	return r != nil && !r.Queued && r.Outcome == nil
}

// ExecutorPlanUseCase is the entry point of moderator commands and the admin
// API. It runs the flush-then-process contract around the MutationQueue.
type ExecutorPlanUseCase struct {
	queue     *MutationQueue
	scheduler *ReminderScheduler
	plans     repository.ExecutorPlanRepository
	blocks    repository.ExecutorBlockRepository
	composer  *MessageComposer
	policy    *DurationPolicy
	log       *zerolog.Logger
}

func NewExecutorPlanUseCase(
	queue *MutationQueue,
	scheduler *ReminderScheduler,
	plans repository.ExecutorPlanRepository,
	blocks repository.ExecutorBlockRepository,
	composer *MessageComposer,
	policy *DurationPolicy,
	logger *zerolog.Logger,
) *ExecutorPlanUseCase {
	if composer == nil {
		composer = NewMessageComposer(nil)
	}
	if policy == nil {
		policy = DefaultDurationPolicy()
	}
	uLog := logger.With().Str("component", "ExecutorPlanUseCase").Logger()
	return &ExecutorPlanUseCase{
		queue:     queue,
		scheduler: scheduler,
		plans:     plans,
		blocks:    blocks,
		composer:  composer,
		policy:    policy,
		log:       &uLog,
	}
}

// Submit applies m live, or parks it in the backlog.
//
// The backlog is flushed first. If anything is still waiting there, m is
// queued behind it so it cannot overtake older mutations. A live apply that
// fails with a store error is queued as well.
func (uc *ExecutorPlanUseCase) Submit(ctx context.Context, m model.Mutation) (*CommandResult, error) {
	if err := ValidateMutation(m); err != nil {
		return nil, err
	}
	backlog := uc.queue.Backlog()

	if backlog.Available() {
		if _, err := uc.queue.Flush(ctx); err != nil {
			uc.log.Warn().Err(err).Msg("backlog flush before live apply failed")
			return uc.enqueue(ctx, m, err)
		}
		depth, err := backlog.Depth(ctx)
		if err != nil {
			uc.log.Warn().Err(err).Msg("backlog depth check failed")
			return uc.enqueue(ctx, m, err)
		}
		if depth > 0 {
			return uc.enqueue(ctx, m, nil)
		}
	}

	out, err := uc.queue.Process(ctx, m)
	if err != nil {
		if isPermanent(err) {
			return nil, err
		}
		uc.log.Warn().Err(err).Str("type", string(m.Type())).Msg("live apply failed")
		return uc.enqueue(ctx, m, err)
	}

	res := &CommandResult{Outcome: out}
	if out != nil && out.Kind != model.OutcomeDeleted && !uc.scheduler.Enabled() {
		res.RemindersDisabled = true
	}
	return res, nil
}

func (uc *ExecutorPlanUseCase) enqueue(ctx context.Context, m model.Mutation, cause error) (*CommandResult, error) {
	if err := uc.queue.Enqueue(ctx, m); err != nil {
		if cause != nil {
			return nil, errors.Join(cause, err)
		}
		return nil, err
	}
	return &CommandResult{Queued: true}, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrUnknownMutation) ||
		errors.Is(err, domain.ErrAlreadyExists)
}

// Get returns the plan or domain.ErrNotFound.
func (uc *ExecutorPlanUseCase) Get(ctx context.Context, id int64) (*model.ExecutorPlan, error) {
	return uc.plans.FindByID(ctx, repository.NoTX, id)
}

// Summary renders the moderator card of a plan.
func (uc *ExecutorPlanUseCase) Summary(p *model.ExecutorPlan) string {
	return uc.composer.PlanSummary(p)
}

// AttachCard stores where the summary card of a plan was posted.
func (uc *ExecutorPlanUseCase) AttachCard(ctx context.Context, id, chatID int64, messageID int) error {
	p, err := uc.plans.SetCard(ctx, repository.NoTX, id, chatID, messageID)
	if err != nil {
		return fmt.Errorf("attach card: %w", err)
	}
	if p == nil {
		return domain.ErrNotFound
	}
	return nil
}

// FlushBacklog replays one batch of the backlog.
func (uc *ExecutorPlanUseCase) FlushBacklog(ctx context.Context) (applied int, remaining int64, err error) {
	applied, err = uc.queue.Flush(ctx)
	if err != nil {
		return applied, 0, err
	}
	remaining, err = uc.queue.Backlog().Depth(ctx)
	return applied, remaining, err
}

// BacklogDepth is the number of mutations waiting for replay.
func (uc *ExecutorPlanUseCase) BacklogDepth(ctx context.Context) (int64, error) {
	return uc.queue.Backlog().Depth(ctx)
}

// IsBlocked reports whether a phone is on the denylist.
func (uc *ExecutorPlanUseCase) IsBlocked(ctx context.Context, phone string) (bool, *model.ExecutorBlock, error) {
	b, err := uc.blocks.Find(ctx, repository.NoTX, model.NormalizePhone(phone))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, b, nil
}

// DurationDays exposes the configured length of a plan choice.
func (uc *ExecutorPlanUseCase) DurationDays(c model.PlanChoice) int {
	return uc.policy.DurationDays(c)
}

func (uc *ExecutorPlanUseCase) RemindersEnabled() bool { return uc.scheduler.Enabled() }
