package usecase

import (
	"context"
	"fmt"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
)

// MutationBacklog encodes mutations onto the durable fallback list. A nil
// store means no durable backend is configured.
type MutationBacklog struct {
	store adapter.MutationBacklog
}

func NewMutationBacklog(store adapter.MutationBacklog) *MutationBacklog {
	return &MutationBacklog{store: store}
}

func (b *MutationBacklog) Available() bool { return b != nil && b.store != nil }

// Enqueue appends m to the tail. It fails with domain.ErrBacklogUnavailable
// when no durable backend is configured.
func (b *MutationBacklog) Enqueue(ctx context.Context, m model.Mutation) error {
	if !b.Available() {
		return domain.ErrBacklogUnavailable
	}
	rec, err := model.MarshalMutation(m)
	if err != nil {
		return err
	}
	if err := b.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append mutation: %w", err)
	}
	return nil
}

// Depth is the number of records waiting; 0 without a backend.
func (b *MutationBacklog) Depth(ctx context.Context) (int64, error) {
	if !b.Available() {
		return 0, nil
	}
	return b.store.Len(ctx)
}

func (b *MutationBacklog) pop(ctx context.Context) ([]byte, bool, error) {
	return b.store.PopHead(ctx)
}

func (b *MutationBacklog) restore(ctx context.Context, rec []byte) error {
	return b.store.PushHead(ctx, rec)
}
