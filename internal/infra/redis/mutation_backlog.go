package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"dispatch-bot/internal/domain/ports/adapter"
)

var _ adapter.MutationBacklog = (*MutationBacklog)(nil)

// MutationBacklog keeps encoded plan mutations in a single Redis list.
// RPUSH appends, LPOP takes the head, LPUSH puts a failed record back in front.
type MutationBacklog struct {
	client  *Client
	listKey string
}

func NewMutationBacklog(client *Client) *MutationBacklog {
	return &MutationBacklog{client: client, listKey: client.key("executor_plans", "backlog")}
}

func (b *MutationBacklog) Append(ctx context.Context, record []byte) error {
	return b.client.cli.RPush(ctx, b.listKey, record).Err()
}

func (b *MutationBacklog) PopHead(ctx context.Context) ([]byte, bool, error) {
	rec, err := b.client.cli.LPop(ctx, b.listKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (b *MutationBacklog) PushHead(ctx context.Context, record []byte) error {
	return b.client.cli.LPush(ctx, b.listKey, record).Err()
}

func (b *MutationBacklog) Len(ctx context.Context) (int64, error) {
	return b.client.cli.LLen(ctx, b.listKey).Result()
}
