package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/domain/ports/repository"
	"dispatch-bot/internal/infra/metrics"
)

// FlushBatchLimit caps how many backlog records one Flush call replays.
const FlushBatchLimit = 100

const (
	flushLockKey = "executor_plans:backlog:flush"
	flushLockTTL = 30 * time.Second
)

// MutationListener is notified after every mutation that changed something.
type MutationListener interface {
	OnMutationOutcome(ctx context.Context, out *model.MutationOutcome) error
}

// MutationQueue applies plan mutations against the store and replays the
// durable backlog. All live and replayed mutations converge on Apply.
type MutationQueue struct {
	plans    repository.ExecutorPlanRepository
	blocks   repository.ExecutorBlockRepository
	txm      repository.TransactionManager
	policy   *DurationPolicy
	backlog  *MutationBacklog
	access   adapter.AccessRefresher
	listener MutationListener
	locker   adapter.Locker
	log      *zerolog.Logger

	flushMu sync.Mutex
}

// NewMutationQueue wires the queue. txm, access, listener may be nil.
func NewMutationQueue(
	plans repository.ExecutorPlanRepository,
	blocks repository.ExecutorBlockRepository,
	txm repository.TransactionManager,
	policy *DurationPolicy,
	backlog *MutationBacklog,
	access adapter.AccessRefresher,
	listener MutationListener,
	logger *zerolog.Logger,
) *MutationQueue {
	if policy == nil {
		policy = DefaultDurationPolicy()
	}
	if backlog == nil {
		backlog = NewMutationBacklog(nil)
	}
	qLog := logger.With().Str("component", "MutationQueue").Logger()
	return &MutationQueue{
		plans:    plans,
		blocks:   blocks,
		txm:      txm,
		policy:   policy,
		backlog:  backlog,
		access:   access,
		listener: listener,
		log:      &qLog,
	}
}

// WithLocker serialises Flush across replicas.
func (q *MutationQueue) WithLocker(l adapter.Locker) *MutationQueue {
	q.locker = l
	return q
}

// Apply executes m against the store. A nil outcome with a nil error means the
// target plan does not exist (or no longer accepts the change).
func (q *MutationQueue) Apply(ctx context.Context, m model.Mutation) (*model.MutationOutcome, error) {
	if err := ValidateMutation(m); err != nil {
		return nil, err
	}
	switch v := m.(type) {
	case model.CreatePlan:
		return q.applyCreate(ctx, v)
	case model.ExtendPlan:
		return updatedOutcome(q.plans.ExtendByDays(ctx, repository.NoTX, v.ID, v.Days))
	case model.SetPlanStatus:
		return q.applySetStatus(ctx, v)
	case model.MutePlan:
		return updatedOutcome(q.plans.SetMuted(ctx, repository.NoTX, v.ID, v.Muted))
	case model.SetPlanStart:
		return updatedOutcome(q.plans.SetStartDate(ctx, repository.NoTX, v.ID, v.StartAt))
	case model.CommentPlan:
		return updatedOutcome(q.plans.SetComment(ctx, repository.NoTX, v.ID, normalizeComment(v.Comment)))
	case model.DeletePlan:
		return q.applyDelete(ctx, v)
	}
	q.log.Warn().Str("type", fmt.Sprintf("%T", m)).Msg("unknown mutation")
	return nil, fmt.Errorf("%w: %T", domain.ErrUnknownMutation, m)
}

// ValidateMutation rejects mutations that can never be applied, so they are
// not parked in the backlog either.
func ValidateMutation(m model.Mutation) error {
	switch v := m.(type) {
	case nil:
		return fmt.Errorf("%w: nil mutation", domain.ErrInvalidArgument)
	case model.CreatePlan:
		in := v.Input
		in.Phone = model.NormalizePhone(in.Phone)
		return in.Validate()
	case model.ExtendPlan:
		if v.Days <= 0 || v.Days > model.MaxPlanDays {
			return fmt.Errorf("%w: extend days must be within 1..%d", domain.ErrInvalidArgument, model.MaxPlanDays)
		}
	case model.SetPlanStatus:
		if !v.Status.Valid() {
			return fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, v.Status)
		}
	case model.SetPlanStart:
		if v.StartAt.IsZero() {
			return fmt.Errorf("%w: start date is required", domain.ErrInvalidArgument)
		}
		if !model.InPlanHorizon(v.StartAt) {
			return fmt.Errorf("%w: start date %s out of range", domain.ErrInvalidArgument, v.StartAt.Format("2006-01-02"))
		}
	}
	return nil
}

func (q *MutationQueue) applyCreate(ctx context.Context, v model.CreatePlan) (*model.MutationOutcome, error) {
	in := v.Input
	in.Phone = model.NormalizePhone(in.Phone)
	in.Comment = normalizeComment(in.Comment)
	if c, err := model.ParsePlanChoice(string(in.PlanChoice)); err == nil {
		in.PlanChoice = c
	}
	if in.EndsAt == nil {
		ends := in.StartAt.Add(q.policy.Duration(in.PlanChoice))
		in.EndsAt = &ends
	}
	plan, err := q.plans.Create(ctx, repository.NoTX, in)
	if err != nil {
		return nil, err
	}
	return model.Created(plan), nil
}

func (q *MutationQueue) applySetStatus(ctx context.Context, v model.SetPlanStatus) (*model.MutationOutcome, error) {
	var plan *model.ExecutorPlan
	err := q.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := q.plans.SetStatus(ctx, tx, v.ID, v.Status)
		if err != nil || p == nil {
			return err
		}
		if v.Status == model.PlanStatusBlocked {
			err = q.blocks.Upsert(ctx, tx, p.Phone, normalizeComment(v.Reason))
		} else {
			err = q.blocks.Remove(ctx, tx, p.Phone)
		}
		if err != nil {
			return fmt.Errorf("update block list: %w", err)
		}
		plan = p
		return nil
	})
	if err != nil || plan == nil {
		return nil, err
	}

	if q.access != nil {
		upd := adapter.AccessUpdate{Phone: plan.Phone, IsBlocked: plan.Status == model.PlanStatusBlocked}
		if err := q.access.Refresh(ctx, plan.ChatID, upd); err != nil {
			q.log.Warn().Err(err).Int64("plan_id", plan.ID).Msg("access cache refresh failed")
		}
	}
	return model.Updated(plan), nil
}

func (q *MutationQueue) applyDelete(ctx context.Context, v model.DeletePlan) (*model.MutationOutcome, error) {
	deleted := false
	err := q.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := q.plans.FindByID(ctx, tx, v.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok, err := q.plans.Delete(ctx, tx, v.ID)
		if err != nil || !ok {
			return err
		}
		if p.Status == model.PlanStatusBlocked {
			if err := q.blocks.Remove(ctx, tx, p.Phone); err != nil {
				return fmt.Errorf("update block list: %w", err)
			}
		}
		deleted = true
		return nil
	})
	if err != nil || !deleted {
		return nil, err
	}
	return model.Deleted(v.ID), nil
}

// Process applies m and, when something changed, notifies the listener.
// Listener failures are logged and never returned.
func (q *MutationQueue) Process(ctx context.Context, m model.Mutation) (*model.MutationOutcome, error) {
	out, err := q.Apply(ctx, m)
	if err != nil {
		metrics.IncPlanMutation(mutationLabel(m), "failed")
		return nil, err
	}
	if out == nil {
		metrics.IncPlanMutation(mutationLabel(m), "not_found")
		return nil, nil
	}
	metrics.IncPlanMutation(mutationLabel(m), "applied")
	q.publish(ctx, out)
	return out, nil
}

func (q *MutationQueue) publish(ctx context.Context, out *model.MutationOutcome) {
	if q.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Int64("plan_id", out.PlanID).Msg("mutation listener panicked")
		}
	}()
	if err := q.listener.OnMutationOutcome(ctx, out); err != nil {
		q.log.Warn().Err(err).Int64("plan_id", out.PlanID).Str("outcome", out.Kind.String()).Msg("mutation listener failed")
	}
}

// Enqueue appends m to the durable backlog for later replay.
func (q *MutationQueue) Enqueue(ctx context.Context, m model.Mutation) error {
	if err := q.backlog.Enqueue(ctx, m); err != nil {
		return err
	}
	metrics.IncPlanMutation(mutationLabel(m), "queued")
	q.log.Info().Str("type", string(m.Type())).Int64("plan_id", model.TargetID(m)).Msg("mutation queued")
	return nil
}

// Backlog exposes the durable backlog (depth checks, availability).
func (q *MutationQueue) Backlog() *MutationBacklog { return q.backlog }

// Flush replays up to FlushBatchLimit records from the head of the backlog.
// When a record fails it is pushed back onto the head and the batch stops, so
// nothing is reordered and a persistently failing record is not spun on.
// Records that cannot be decoded, or that the store rejects outright, are
// dropped with an error log.
func (q *MutationQueue) Flush(ctx context.Context) (int, error) {
	if !q.backlog.Available() {
		return 0, nil
	}
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	if q.locker != nil {
		token, err := q.locker.TryLock(ctx, flushLockKey, flushLockTTL)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("acquire flush lock: %w", err)
		}
		defer func() {
			if err := q.locker.Unlock(context.WithoutCancel(ctx), flushLockKey, token); err != nil {
				q.log.Warn().Err(err).Msg("release flush lock")
			}
		}()
	}

	applied := 0
	defer func() {
		if applied > 0 {
			metrics.IncBacklogFlushed("applied", applied)
		}
	}()
	for i := 0; i < FlushBatchLimit; i++ {
		rec, ok, err := q.backlog.pop(ctx)
		if err != nil {
			return applied, fmt.Errorf("pop backlog: %w", err)
		}
		if !ok {
			break
		}
		m, err := model.UnmarshalMutation(rec)
		if err != nil {
			q.log.Error().Err(err).Str("record", string(rec)).Msg("dropping undecodable backlog record")
			continue
		}
		if _, err := q.Process(ctx, m); err != nil {
			if isPermanent(err) {
				q.log.Error().Err(err).Str("type", string(m.Type())).Int64("plan_id", model.TargetID(m)).
					Msg("dropping rejected backlog record")
				metrics.IncBacklogFlushed("dropped", 1)
				continue
			}
			if rerr := q.backlog.restore(context.WithoutCancel(ctx), rec); rerr != nil {
				q.log.Error().Err(rerr).Str("record", string(rec)).Msg("failed to restore backlog record")
				return applied, errors.Join(err, rerr)
			}
			metrics.IncBacklogFlushed("restored", 1)
			return applied, fmt.Errorf("replay %s mutation: %w", m.Type(), err)
		}
		applied++
	}
	return applied, nil
}

func (q *MutationQueue) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if q.txm == nil {
		return fn(ctx, repository.NoTX)
	}
	return q.txm.WithTx(ctx, fn)
}

func updatedOutcome(p *model.ExecutorPlan, err error) (*model.MutationOutcome, error) {
	if err != nil || p == nil {
		return nil, err
	}
	return model.Updated(p), nil
}

func normalizeComment(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func mutationLabel(m model.Mutation) string {
	if m == nil {
		return "nil"
	}
	return string(m.Type())
}
