package repository

import (
	"context"
	"time"

	"dispatch-bot/internal/domain/model"
)

// -----------------------------
// Executor plans
// -----------------------------

// ExecutorPlanRepository is the port for plan persistence. Every update is a
// single atomic statement; an update that matches no row returns (nil, nil).
type ExecutorPlanRepository interface {
	// Create inserts a plan. in.EndsAt must already be resolved.
	Create(ctx context.Context, tx Tx, in model.PlanInsertInput) (*model.ExecutorPlan, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.ExecutorPlan, error)
	// SetStatus only matches non-terminal (active/blocked) plans.
	SetStatus(ctx context.Context, tx Tx, id int64, status model.PlanStatus) (*model.ExecutorPlan, error)
	SetMuted(ctx context.Context, tx Tx, id int64, muted bool) (*model.ExecutorPlan, error)
	// ExtendByDays moves StartAt to the previous EndsAt and pushes EndsAt by days.
	// Reminder progress is reset.
	ExtendByDays(ctx context.Context, tx Tx, id int64, days int) (*model.ExecutorPlan, error)
	// SetStartDate moves StartAt and keeps the stored duration. Reminder progress is reset.
	SetStartDate(ctx context.Context, tx Tx, id int64, startAt time.Time) (*model.ExecutorPlan, error)
	SetComment(ctx context.Context, tx Tx, id int64, comment *string) (*model.ExecutorPlan, error)
	Delete(ctx context.Context, tx Tx, id int64) (bool, error)
	// ListForScheduling returns every active or blocked plan.
	ListForScheduling(ctx context.Context, tx Tx) ([]*model.ExecutorPlan, error)
	// AdvanceReminder sets reminder_index = expected+1 only when the stored index
	// still equals expected. Returns nil when the guard did not match.
	AdvanceReminder(ctx context.Context, tx Tx, id int64, expected int, sentAt time.Time) (*model.ExecutorPlan, error)
	// SetCard stores the pointer to the externally rendered summary message.
	SetCard(ctx context.Context, tx Tx, id int64, chatID int64, messageID int) (*model.ExecutorPlan, error)
}

// ExecutorBlockRepository is the port for the phone-keyed denylist.
type ExecutorBlockRepository interface {
	Upsert(ctx context.Context, tx Tx, phone string, reason *string) error
	Remove(ctx context.Context, tx Tx, phone string) error
	// Find returns domain.ErrNotFound when the phone is not blocked.
	Find(ctx context.Context, tx Tx, phone string) (*model.ExecutorBlock, error)
}
