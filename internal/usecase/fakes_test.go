package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/domain/ports/repository"
)

var testNow = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ---- plans ----

type memPlanRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.ExecutorPlan
	now    func() time.Time
	// fail, when set, is consulted before every operation.
	fail func(op string, id int64) error
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{rows: map[int64]*model.ExecutorPlan{}, now: fixedClock(testNow)}
}

func clonePlan(p *model.ExecutorPlan) *model.ExecutorPlan {
	c := *p
	return &c
}

func (r *memPlanRepo) check(op string, id int64) error {
	if r.fail == nil {
		return nil
	}
	return r.fail(op, id)
}

func (r *memPlanRepo) update(op string, id int64, match func(*model.ExecutorPlan) bool, fn func(*model.ExecutorPlan)) (*model.ExecutorPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(op, id); err != nil {
		return nil, err
	}
	p, ok := r.rows[id]
	if !ok || (match != nil && !match(p)) {
		return nil, nil
	}
	fn(p)
	p.UpdatedAt = r.now()
	return clonePlan(p), nil
}

func (r *memPlanRepo) Create(_ context.Context, _ repository.Tx, in model.PlanInsertInput) (*model.ExecutorPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("create", 0); err != nil {
		return nil, err
	}
	for _, p := range r.rows {
		if p.Phone == in.Phone && !p.Status.IsTerminal() {
			return nil, fmt.Errorf("create executor plan: %w", domain.ErrAlreadyExists)
		}
	}
	r.nextID++
	p := &model.ExecutorPlan{
		ID:         r.nextID,
		ChatID:     in.ChatID,
		ThreadID:   in.ThreadID,
		Phone:      in.Phone,
		Nickname:   in.Nickname,
		PlanChoice: in.PlanChoice,
		StartAt:    in.StartAt,
		EndsAt:     *in.EndsAt,
		Comment:    in.Comment,
		Status:     model.PlanStatusActive,
		CreatedAt:  r.now(),
		UpdatedAt:  r.now(),
	}
	r.rows[p.ID] = p
	return clonePlan(p), nil
}

func (r *memPlanRepo) FindByID(_ context.Context, _ repository.Tx, id int64) (*model.ExecutorPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("find", id); err != nil {
		return nil, err
	}
	p, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePlan(p), nil
}

func (r *memPlanRepo) SetStatus(_ context.Context, _ repository.Tx, id int64, status model.PlanStatus) (*model.ExecutorPlan, error) {
	return r.update("set_status", id,
		func(p *model.ExecutorPlan) bool { return !p.Status.IsTerminal() },
		func(p *model.ExecutorPlan) { p.Status = status })
}

func (r *memPlanRepo) SetMuted(_ context.Context, _ repository.Tx, id int64, muted bool) (*model.ExecutorPlan, error) {
	return r.update("set_muted", id, nil, func(p *model.ExecutorPlan) { p.Muted = muted })
}

func (r *memPlanRepo) ExtendByDays(_ context.Context, _ repository.Tx, id int64, days int) (*model.ExecutorPlan, error) {
	return r.update("extend", id, nil, func(p *model.ExecutorPlan) {
		p.StartAt = p.EndsAt
		p.EndsAt = p.EndsAt.Add(time.Duration(days) * 24 * time.Hour)
		p.ReminderIndex = 0
		p.ReminderLastSentAt = nil
	})
}

func (r *memPlanRepo) SetStartDate(_ context.Context, _ repository.Tx, id int64, startAt time.Time) (*model.ExecutorPlan, error) {
	return r.update("set_start", id, nil, func(p *model.ExecutorPlan) {
		length := p.EndsAt.Sub(p.StartAt)
		p.StartAt = startAt
		p.EndsAt = startAt.Add(length)
		p.ReminderIndex = 0
		p.ReminderLastSentAt = nil
	})
}

func (r *memPlanRepo) SetComment(_ context.Context, _ repository.Tx, id int64, comment *string) (*model.ExecutorPlan, error) {
	return r.update("comment", id, nil, func(p *model.ExecutorPlan) { p.Comment = comment })
}

func (r *memPlanRepo) Delete(_ context.Context, _ repository.Tx, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("delete", id); err != nil {
		return false, err
	}
	if _, ok := r.rows[id]; !ok {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

func (r *memPlanRepo) ListForScheduling(_ context.Context, _ repository.Tx) ([]*model.ExecutorPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check("list", 0); err != nil {
		return nil, err
	}
	var out []*model.ExecutorPlan
	for _, p := range r.rows {
		if p.Status == model.PlanStatusActive || p.Status == model.PlanStatusBlocked {
			out = append(out, clonePlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPlanRepo) AdvanceReminder(_ context.Context, _ repository.Tx, id int64, expected int, sentAt time.Time) (*model.ExecutorPlan, error) {
	return r.update("advance", id,
		func(p *model.ExecutorPlan) bool { return p.ReminderIndex == expected },
		func(p *model.ExecutorPlan) {
			p.ReminderIndex = expected + 1
			p.ReminderLastSentAt = &sentAt
		})
}

func (r *memPlanRepo) SetCard(_ context.Context, _ repository.Tx, id int64, chatID int64, messageID int) (*model.ExecutorPlan, error) {
	return r.update("set_card", id, nil, func(p *model.ExecutorPlan) {
		p.CardChatID = &chatID
		p.CardMessageID = &messageID
	})
}

func (r *memPlanRepo) get(id int64) *model.ExecutorPlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[id]; ok {
		return clonePlan(p)
	}
	return nil
}

// ---- blocks ----

type memBlockRepo struct {
	mu   sync.Mutex
	rows map[string]*model.ExecutorBlock
}

func newMemBlockRepo() *memBlockRepo {
	return &memBlockRepo{rows: map[string]*model.ExecutorBlock{}}
}

func (r *memBlockRepo) Upsert(_ context.Context, _ repository.Tx, phone string, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.rows[phone]; ok {
		b.Reason = reason
		return nil
	}
	r.rows[phone] = &model.ExecutorBlock{Phone: phone, Reason: reason, CreatedAt: testNow}
	return nil
}

func (r *memBlockRepo) Remove(_ context.Context, _ repository.Tx, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, phone)
	return nil
}

func (r *memBlockRepo) Find(_ context.Context, _ repository.Tx, phone string) (*model.ExecutorBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[phone]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *b
	return &c, nil
}

// ---- transactions ----

type countingTxManager struct {
	calls int
}

func (m *countingTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	return fn(ctx, repository.NoTX)
}

// ---- backlog ----

type memBacklog struct {
	mu      sync.Mutex
	items   [][]byte
	failPop error
}

func (b *memBacklog) Append(_ context.Context, rec []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, append([]byte(nil), rec...))
	return nil
}

func (b *memBacklog) PopHead(_ context.Context) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPop != nil {
		return nil, false, b.failPop
	}
	if len(b.items) == 0 {
		return nil, false, nil
	}
	rec := b.items[0]
	b.items = b.items[1:]
	return rec, true, nil
}

func (b *memBacklog) PushHead(_ context.Context, rec []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append([][]byte{rec}, b.items...)
	return nil
}

func (b *memBacklog) Len(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.items)), nil
}

func (b *memBacklog) decoded() []model.Mutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Mutation, 0, len(b.items))
	for _, rec := range b.items {
		m, err := model.UnmarshalMutation(rec)
		if err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

// ---- delayed jobs ----

type scheduledJob struct {
	job   model.ReminderJob
	delay time.Duration
}

type memJobQueue struct {
	mu        sync.Mutex
	jobs      map[string]scheduledJob
	scheduled int
}

func newMemJobQueue() *memJobQueue {
	return &memJobQueue{jobs: map[string]scheduledJob{}}
}

func (q *memJobQueue) Schedule(_ context.Context, job model.ReminderJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID()] = scheduledJob{job: job, delay: delay}
	q.scheduled++
	return nil
}

func (q *memJobQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
	return nil
}

func (q *memJobQueue) forPlan(planID int64) []scheduledJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []scheduledJob
	for _, j := range q.jobs {
		if j.job.PlanID == planID {
			out = append(out, j)
		}
	}
	return out
}

// ---- collaborators ----

type sentMessage struct {
	chatID   int64
	threadID *int
	text     string
	rows     [][]adapter.InlineButton
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(_ context.Context, chatID int64, threadID *int, text string, rows [][]adapter.InlineButton) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{chatID: chatID, threadID: threadID, text: text, rows: rows})
	return s.err
}

type fakeAccess struct {
	mu      sync.Mutex
	updates []adapter.AccessUpdate
	err     error
}

func (a *fakeAccess) Refresh(_ context.Context, _ int64, upd adapter.AccessUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, upd)
	return a.err
}

type recordingListener struct {
	outcomes []*model.MutationOutcome
	err      error
}

func (l *recordingListener) OnMutationOutcome(_ context.Context, out *model.MutationOutcome) error {
	l.outcomes = append(l.outcomes, out)
	return l.err
}

type fakeLocker struct {
	busy bool
	held int
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (string, error) {
	if l.busy {
		return "", domain.ErrLockNotAcquired
	}
	l.held++
	return "token", nil
}

func (l *fakeLocker) Unlock(_ context.Context, _, _ string) error {
	l.held--
	return nil
}

// ---- fixtures ----

func ptr[T any](v T) *T { return &v }

func sampleInput(phone string, choice model.PlanChoice) model.PlanInsertInput {
	return model.PlanInsertInput{
		ChatID:     -100123,
		ThreadID:   ptr(7),
		Phone:      phone,
		Nickname:   ptr("driver"),
		PlanChoice: choice,
		StartAt:    testNow,
	}
}
