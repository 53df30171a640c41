package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/domain/ports/adapter"
	"dispatch-bot/internal/infra/metrics"
)

var _ adapter.ReminderJobQueue = (*ReminderJobs)(nil)

// ReminderJobs is a delayed-job queue: a sorted set scored by due time (unix
// ms) plus a hash holding the payload of each job id.
type ReminderJobs struct {
	client     *Client
	delayedKey string
	payloadKey string
	now        func() time.Time
}

func NewReminderJobs(client *Client) *ReminderJobs {
	return &ReminderJobs{
		client:     client,
		delayedKey: client.key("reminders", "delayed"),
		payloadKey: client.key("reminders", "payloads"),
		now:        time.Now,
	}
}

// WithClock replaces the clock used to turn delays into due times.
func (q *ReminderJobs) WithClock(now func() time.Time) *ReminderJobs {
	q.now = now
	return q
}

// Schedule stores job due after delay. An existing job with the same id is
// overwritten, including its due time.
func (q *ReminderJobs) Schedule(ctx context.Context, job model.ReminderJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	due := q.now().Add(delay)
	id := job.ID()
	_, err = q.client.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.payloadKey, id, payload)
		p.ZAdd(ctx, q.delayedKey, &redis.Z{Score: float64(due.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule reminder %s: %w", id, err)
	}
	metrics.IncReminderJob("scheduled")
	return nil
}

func (q *ReminderJobs) Remove(ctx context.Context, jobID string) error {
	_, err := q.client.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.delayedKey, jobID)
		p.HDel(ctx, q.payloadKey, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove reminder %s: %w", jobID, err)
	}
	metrics.IncReminderJob("removed")
	return nil
}

var luaClaimDue = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	local payload = redis.call("HGET", KEYS[2], id)
	redis.call("HDEL", KEYS[2], id)
	table.insert(out, id)
	if payload then
		table.insert(out, payload)
	else
		table.insert(out, "")
	end
end
return out`)

// ClaimDue atomically takes up to limit jobs whose due time is <= now, oldest
// first. A claimed job is gone from the queue; callers Retry it on failure.
func (q *ReminderJobs) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.ReminderJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	res, err := luaClaimDue.Run(ctx, q.client.cli,
		[]string{q.delayedKey, q.payloadKey}, now.UnixMilli(), limit).Result()
	if err != nil {
		return nil, fmt.Errorf("claim reminders: %w", err)
	}
	flat, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("claim reminders: unexpected reply %T", res)
	}
	jobs := make([]model.ReminderJob, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		id, _ := flat[i].(string)
		payload, _ := flat[i+1].(string)
		job, err := decodeJob(id, payload)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) > 0 {
		metrics.IncReminderJob("claimed")
	}
	return jobs, nil
}

func decodeJob(id, payload string) (model.ReminderJob, error) {
	if payload != "" {
		var job model.ReminderJob
		if err := json.Unmarshal([]byte(payload), &job); err == nil && job.ID() == id {
			return job, nil
		}
	}
	return model.ParseReminderJobID(id)
}

// Retry puts a claimed job back, due after delay. A job that was rescheduled
// under the same id in the meantime keeps its newer due time.
func (q *ReminderJobs) Retry(ctx context.Context, job model.ReminderJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := q.now().Add(delay)
	id := job.ID()
	_, err = q.client.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, q.payloadKey, id, payload)
		p.ZAddNX(ctx, q.delayedKey, &redis.Z{Score: float64(due.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry reminder %s: %w", id, err)
	}
	metrics.IncReminderJob("retried")
	return nil
}

// DueAt reports when a pending job fires; ok is false for unknown ids.
func (q *ReminderJobs) DueAt(ctx context.Context, jobID string) (time.Time, bool, error) {
	score, err := q.client.cli.ZScore(ctx, q.delayedKey, jobID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

// Pending is the number of jobs waiting.
func (q *ReminderJobs) Pending(ctx context.Context) (int64, error) {
	return q.client.cli.ZCard(ctx, q.delayedKey).Result()
}
