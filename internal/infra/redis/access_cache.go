package redis

import (
	"context"
	"strings"

	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/infra/metrics"
)

var _ adapter.AccessRefresher = (*AccessCache)(nil)

// AccessCache mirrors the executor block list for the order feed. A blocked
// phone has a key holding the chat id it was blocked in.
type AccessCache struct {
	client *Client
}

func NewAccessCache(client *Client) *AccessCache {
	return &AccessCache{client: client}
}

func (c *AccessCache) phoneKey(phone string) string {
	return c.client.key("access", "blocked", strings.TrimSpace(phone))
}

func (c *AccessCache) Refresh(ctx context.Context, chatID int64, upd adapter.AccessUpdate) error {
	if strings.TrimSpace(upd.Phone) == "" {
		return nil
	}
	if upd.IsBlocked {
		return c.client.cli.Set(ctx, c.phoneKey(upd.Phone), chatID, 0).Err()
	}
	return c.client.cli.Del(ctx, c.phoneKey(upd.Phone)).Err()
}

func (c *AccessCache) IsBlocked(ctx context.Context, phone string) (bool, error) {
	n, err := c.client.cli.Exists(ctx, c.phoneKey(phone)).Result()
	if err != nil {
		metrics.IncCacheRequest("access", "error")
		return false, err
	}
	if n > 0 {
		metrics.IncCacheRequest("access", "blocked")
		return true, nil
	}
	metrics.IncCacheRequest("access", "clear")
	return false, nil
}
