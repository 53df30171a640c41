package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
)

func newPlanUseCase(withBacklog bool, jobs adapter.ReminderJobQueue) (*ExecutorPlanUseCase, *schedFixture) {
	f := newSchedFixture(withBacklog, testNow)
	sched := f.sched
	if jobs == nil {
		sched = NewReminderScheduler(nil, f.plans, nil, nil, f.queue.Backlog(), testLogger())
		f.queue.listener = sched
	}
	uc := NewExecutorPlanUseCase(f.queue, sched, f.plans, f.blocks, nil, nil, testLogger())
	return uc, f
}

func TestExecutorPlanUseCase_SubmitLive(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(true, newMemJobQueue())
	res, err := uc.Submit(context.Background(), model.CreatePlan{Input: sampleInput("+7002001", model.PlanChoice7)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Queued || res.RemindersDisabled || res.Outcome == nil || res.Outcome.Kind != model.OutcomeCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.jobs.forPlan(res.Outcome.PlanID)) != 1 {
		t.Fatalf("expected reminder job for created plan")
	}
}

func TestExecutorPlanUseCase_SubmitReportsDisabledReminders(t *testing.T) {
	t.Parallel()

	uc, _ := newPlanUseCase(false, nil)
	res, err := uc.Submit(context.Background(), model.CreatePlan{Input: sampleInput("+7002002", model.PlanChoice7)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.RemindersDisabled {
		t.Fatalf("expected reminders to be reported disabled")
	}
	if uc.RemindersEnabled() {
		t.Fatalf("expected RemindersEnabled to be false")
	}
}

func TestExecutorPlanUseCase_SubmitNotFound(t *testing.T) {
	t.Parallel()

	uc, _ := newPlanUseCase(true, newMemJobQueue())
	res, err := uc.Submit(context.Background(), model.MutePlan{ID: 404, Muted: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.NotFound() {
		t.Fatalf("expected not found result, got %+v", res)
	}
}

func TestExecutorPlanUseCase_SubmitQueuesOnStoreFailure(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(true, newMemJobQueue())
	ctx := context.Background()
	created, err := uc.Submit(ctx, model.CreatePlan{Input: sampleInput("+7002003", model.PlanChoice7)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Outcome.PlanID

	f.plans.fail = func(op string, _ int64) error {
		if op == "extend" {
			return errors.New("store unavailable")
		}
		return nil
	}
	res, err := uc.Submit(ctx, model.ExtendPlan{ID: id, Days: 7})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Queued {
		t.Fatalf("expected mutation to be queued, got %+v", res)
	}

	// A newer mutation must queue behind the pending one.
	res, err = uc.Submit(ctx, model.MutePlan{ID: id, Muted: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Queued {
		t.Fatalf("expected mutation to queue behind the backlog, got %+v", res)
	}
	if f.plans.get(id).Muted {
		t.Fatalf("queued mutation must not be applied early")
	}

	f.plans.fail = nil
	applied, remaining, err := uc.FlushBacklog(ctx)
	if err != nil || applied != 2 || remaining != 0 {
		t.Fatalf("expected 2 applied and empty backlog, got (%d, %d, %v)", applied, remaining, err)
	}
	got := f.plans.get(id)
	if !got.Muted || got.EndsAt.Sub(got.StartAt).Hours() != 7*24 {
		t.Fatalf("expected replayed extend and mute, got %+v", got)
	}
}

func TestExecutorPlanUseCase_SubmitWithoutBacklogReturnsError(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(false, newMemJobQueue())
	storeErr := errors.New("store unavailable")
	f.plans.fail = func(string, int64) error { return storeErr }

	_, err := uc.Submit(context.Background(), model.CreatePlan{Input: sampleInput("+7002004", model.PlanChoice7)})
	if !errors.Is(err, storeErr) || !errors.Is(err, domain.ErrBacklogUnavailable) {
		t.Fatalf("expected store and backlog errors, got %v", err)
	}
}

func TestExecutorPlanUseCase_SubmitRejectsInvalid(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(true, newMemJobQueue())
	_, err := uc.Submit(context.Background(), model.ExtendPlan{ID: 1, Days: -3})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(f.store.decoded()) != 0 {
		t.Fatalf("invalid mutation must not be queued")
	}
}

func TestExecutorPlanUseCase_SubmitDuplicatePhone(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(true, newMemJobQueue())
	ctx := context.Background()
	if _, err := uc.Submit(ctx, model.CreatePlan{Input: sampleInput("+7 (700) 200-50-05", model.PlanChoice7)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := uc.Submit(ctx, model.CreatePlan{Input: sampleInput("+77002005005", model.PlanChoice15)})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got (%+v, %v)", res, err)
	}
	if len(f.store.decoded()) != 0 {
		t.Fatalf("duplicate must not be queued")
	}
}

func TestExecutorPlanUseCase_SubmitDoesNotQueueStoreRejection(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(true, newMemJobQueue())
	ctx := context.Background()
	created, err := uc.Submit(ctx, model.CreatePlan{Input: sampleInput("+7002006", model.PlanChoice7)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Outcome.PlanID

	f.plans.fail = func(op string, _ int64) error {
		if op == "extend" {
			return fmt.Errorf("extend executor plan: %w: timestamp out of range (22008)", domain.ErrInvalidArgument)
		}
		return nil
	}
	if _, err := uc.Submit(ctx, model.ExtendPlan{ID: id, Days: 30}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(f.store.decoded()) != 0 {
		t.Fatalf("rejected mutation must not be queued")
	}

	res, err := uc.Submit(ctx, model.MutePlan{ID: id, Muted: true})
	if err != nil || res.Queued {
		t.Fatalf("expected later mutation to apply live, got (%+v, %v)", res, err)
	}
	if !f.plans.get(id).Muted {
		t.Fatalf("expected mute to apply")
	}
}

func TestExecutorPlanUseCase_SubmitRejectsOversizedExtend(t *testing.T) {
	t.Parallel()

	uc, f := newPlanUseCase(true, newMemJobQueue())
	_, err := uc.Submit(context.Background(), model.ExtendPlan{ID: 1, Days: model.MaxPlanDays + 1})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(f.store.decoded()) != 0 {
		t.Fatalf("oversized extend must not be queued")
	}
}

func TestExecutorPlanUseCase_BlockLookupAndCard(t *testing.T) {
	t.Parallel()

	uc, _ := newPlanUseCase(true, newMemJobQueue())
	ctx := context.Background()
	res, err := uc.Submit(ctx, model.CreatePlan{Input: sampleInput("+7 000 300 1234", model.PlanChoiceTrial)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.Outcome.PlanID

	if _, err := uc.Submit(ctx, model.SetPlanStatus{ID: id, Status: model.PlanStatusBlocked, Reason: ptr("no-show")}); err != nil {
		t.Fatalf("block: %v", err)
	}
	blocked, b, err := uc.IsBlocked(ctx, "+7-000-300-1234")
	if err != nil || !blocked || b == nil {
		t.Fatalf("expected phone to be blocked, got (%v, %+v, %v)", blocked, b, err)
	}

	if err := uc.AttachCard(ctx, id, -1009, 55); err != nil {
		t.Fatalf("attach card: %v", err)
	}
	p, err := uc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.CardMessageID == nil || *p.CardMessageID != 55 || p.CardChatID == nil || *p.CardChatID != -1009 {
		t.Fatalf("expected card pointer to be stored, got %+v", p)
	}
	if err := uc.AttachCard(ctx, 404, 1, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := uc.Get(ctx, 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if uc.DurationDays(model.PlanChoiceTrial) != 3 {
		t.Fatalf("expected default trial duration")
	}
}
