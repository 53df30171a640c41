package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v4"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/repository"
)

var _ repository.ExecutorPlanRepository = (*executorPlanRepo)(nil)

const planColumns = `id, chat_id, thread_id, phone, nickname, plan_choice, start_at, ends_at, comment,
       status, muted, reminder_index, reminder_last_sent, card_message_id, card_chat_id,
       created_at, updated_at`

type executorPlanRepo struct {
	db DB
}

func NewExecutorPlanRepo(db DB) repository.ExecutorPlanRepository {
	return &executorPlanRepo{db: db}
}

func scanPlan(row pgx.Row) (*model.ExecutorPlan, error) {
	var (
		p      model.ExecutorPlan
		choice string
		status string
	)
	err := row.Scan(
		&p.ID, &p.ChatID, &p.ThreadID, &p.Phone, &p.Nickname, &choice, &p.StartAt, &p.EndsAt, &p.Comment,
		&status, &p.Muted, &p.ReminderIndex, &p.ReminderLastSentAt, &p.CardMessageID, &p.CardChatID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PlanChoice = model.PlanChoice(choice)
	p.Status = model.PlanStatus(status)
	return &p, nil
}

// returning runs an UPDATE ... RETURNING statement. No matching row yields (nil, nil).
func (r *executorPlanRepo) returning(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) (*model.ExecutorPlan, error) {
	row, err := pickRow(ctx, r.db, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op+" executor plan", err)
	}
	return p, nil
}

func (r *executorPlanRepo) Create(ctx context.Context, tx repository.Tx, in model.PlanInsertInput) (*model.ExecutorPlan, error) {
	if in.EndsAt == nil {
		return nil, domain.ErrInvalidArgument
	}
	q := `
INSERT INTO executor_plans (chat_id, thread_id, phone, nickname, plan_choice, start_at, ends_at, comment, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active')
RETURNING ` + planColumns
	row, err := pickRow(ctx, r.db, tx, q,
		in.ChatID, in.ThreadID, in.Phone, in.Nickname, string(in.PlanChoice), in.StartAt, *in.EndsAt, in.Comment)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, classify("create executor plan", err)
	}
	return p, nil
}

func (r *executorPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.ExecutorPlan, error) {
	q := `SELECT ` + planColumns + ` FROM executor_plans WHERE id = $1`
	row, err := pickRow(ctx, r.db, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find executor plan: %w", err)
	}
	return p, nil
}

func (r *executorPlanRepo) SetStatus(ctx context.Context, tx repository.Tx, id int64, status model.PlanStatus) (*model.ExecutorPlan, error) {
	q := `
UPDATE executor_plans
   SET status = $2, updated_at = NOW()
 WHERE id = $1 AND status IN ('active', 'blocked')
RETURNING ` + planColumns
	return r.returning(ctx, tx, "set status", q, id, string(status))
}

func (r *executorPlanRepo) SetMuted(ctx context.Context, tx repository.Tx, id int64, muted bool) (*model.ExecutorPlan, error) {
	q := `
UPDATE executor_plans
   SET muted = $2, updated_at = NOW()
 WHERE id = $1
RETURNING ` + planColumns
	return r.returning(ctx, tx, "mute", q, id, muted)
}

func (r *executorPlanRepo) ExtendByDays(ctx context.Context, tx repository.Tx, id int64, days int) (*model.ExecutorPlan, error) {
	if days <= 0 || days > math.MaxInt32 {
		return nil, fmt.Errorf("%w: extend by %d days", domain.ErrInvalidArgument, days)
	}
	q := `
UPDATE executor_plans
   SET start_at = ends_at,
       ends_at = ends_at + ($2::int * INTERVAL '1 day'),
       reminder_index = 0,
       reminder_last_sent = NULL,
       updated_at = NOW()
 WHERE id = $1
RETURNING ` + planColumns
	return r.returning(ctx, tx, "extend", q, id, days)
}

func (r *executorPlanRepo) SetStartDate(ctx context.Context, tx repository.Tx, id int64, startAt time.Time) (*model.ExecutorPlan, error) {
	// the stored length survives a start correction
	q := `
UPDATE executor_plans
   SET start_at = $2::timestamptz,
       ends_at = $2::timestamptz + (ends_at - start_at),
       reminder_index = 0,
       reminder_last_sent = NULL,
       updated_at = NOW()
 WHERE id = $1
RETURNING ` + planColumns
	return r.returning(ctx, tx, "set start", q, id, startAt)
}

func (r *executorPlanRepo) SetComment(ctx context.Context, tx repository.Tx, id int64, comment *string) (*model.ExecutorPlan, error) {
	q := `
UPDATE executor_plans
   SET comment = $2, updated_at = NOW()
 WHERE id = $1
RETURNING ` + planColumns
	return r.returning(ctx, tx, "comment", q, id, comment)
}

func (r *executorPlanRepo) Delete(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	ct, err := execSQL(ctx, r.db, tx, `DELETE FROM executor_plans WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete executor plan: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *executorPlanRepo) ListForScheduling(ctx context.Context, tx repository.Tx) ([]*model.ExecutorPlan, error) {
	q := `SELECT ` + planColumns + ` FROM executor_plans WHERE status IN ('active', 'blocked') ORDER BY id`
	rows, err := queryRows(ctx, r.db, tx, q)
	if err != nil {
		return nil, fmt.Errorf("list executor plans: %w", err)
	}
	defer rows.Close()

	var out []*model.ExecutorPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *executorPlanRepo) AdvanceReminder(ctx context.Context, tx repository.Tx, id int64, expected int, sentAt time.Time) (*model.ExecutorPlan, error) {
	q := `
UPDATE executor_plans
   SET reminder_index = reminder_index + 1,
       reminder_last_sent = $3,
       updated_at = NOW()
 WHERE id = $1 AND reminder_index = $2
RETURNING ` + planColumns
	return r.returning(ctx, tx, "advance reminder of", q, id, expected, sentAt)
}

func (r *executorPlanRepo) SetCard(ctx context.Context, tx repository.Tx, id int64, chatID int64, messageID int) (*model.ExecutorPlan, error) {
	q := `
UPDATE executor_plans
   SET card_chat_id = $2, card_message_id = $3, updated_at = NOW()
 WHERE id = $1
RETURNING ` + planColumns
	return r.returning(ctx, tx, "set card of", q, id, chatID, messageID)
}
