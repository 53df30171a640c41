package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/repository"
)

var _ repository.ExecutorBlockRepository = (*executorBlockRepo)(nil)

type executorBlockRepo struct {
	db DB
}

func NewExecutorBlockRepo(db DB) repository.ExecutorBlockRepository {
	return &executorBlockRepo{db: db}
}

func (r *executorBlockRepo) Upsert(ctx context.Context, tx repository.Tx, phone string, reason *string) error {
	const q = `
INSERT INTO executor_blocks (phone, reason)
VALUES ($1, $2)
ON CONFLICT (phone) DO UPDATE SET reason = EXCLUDED.reason`
	if _, err := execSQL(ctx, r.db, tx, q, phone, reason); err != nil {
		return fmt.Errorf("upsert executor block: %w", err)
	}
	return nil
}

func (r *executorBlockRepo) Remove(ctx context.Context, tx repository.Tx, phone string) error {
	if _, err := execSQL(ctx, r.db, tx, `DELETE FROM executor_blocks WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("remove executor block: %w", err)
	}
	return nil
}

func (r *executorBlockRepo) Find(ctx context.Context, tx repository.Tx, phone string) (*model.ExecutorBlock, error) {
	row, err := pickRow(ctx, r.db, tx, `SELECT phone, reason, created_at FROM executor_blocks WHERE phone = $1`, phone)
	if err != nil {
		return nil, err
	}
	var b model.ExecutorBlock
	if err := row.Scan(&b.Phone, &b.Reason, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &b, nil
}
