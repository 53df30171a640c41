package adapter

import (
	"context"
	"time"

	"dispatch-bot/internal/domain/model"
)

// MutationBacklog is an ordered, persistent FIFO of encoded mutations with
// atomic push/pop at both ends.
type MutationBacklog interface {
	// Append pushes a record onto the tail.
	Append(ctx context.Context, record []byte) error
	// PopHead removes and returns the head record; ok is false when empty.
	PopHead(ctx context.Context) (record []byte, ok bool, err error)
	// PushHead restores a record to the head.
	PushHead(ctx context.Context, record []byte) error
	Len(ctx context.Context) (int64, error)
}

// ReminderJobQueue is the delayed-job backend. Jobs are keyed by
// model.ReminderJob.ID(); scheduling an existing id overwrites it.
type ReminderJobQueue interface {
	Schedule(ctx context.Context, job model.ReminderJob, delay time.Duration) error
	// Remove deletes a pending job; removing an unknown id is a no-op.
	Remove(ctx context.Context, jobID string) error
}

// Locker serialises work across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
