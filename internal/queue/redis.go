// Package queue provides the Redis-backed work queue client. Entries are
// stored as hashes keyed by job ID and scheduled through a sorted set whose
// score is the entry's earliest delivery time. Failing a delivery pushes the
// entry back with an exponential-backoff score until its delivery budget is
// exhausted.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tamecalm/job-processor/internal/domain"
)

// Config tunes the queue client. Zero values fall back to defaults.
type Config struct {
	// Namespace prefixes every Redis key. Default "jobq".
	Namespace string

	// MaxDeliveries is the per-entry delivery budget, including the first
	// delivery. Entries that fail their final delivery are dropped; the
	// record store keeps the last observed outcome. Default 3.
	MaxDeliveries int

	// RetryInitial and RetryMax bound the exponential redelivery backoff.
	// Defaults 5s and 5m.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// PollInterval is how often an idle consumer checks for ready
	// entries. Default 250ms.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "jobq"
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 3
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 5 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// RedisQueue implements domain.Queue.
type RedisQueue struct {
	client *redis.Client
	cfg    Config
}

// NewRedisQueue creates a queue client on top of an established Redis
// connection.
func NewRedisQueue(client *redis.Client, cfg Config) *RedisQueue {
	return &RedisQueue{client: client, cfg: cfg.withDefaults()}
}

func (q *RedisQueue) entryKey(id string) string { return q.cfg.Namespace + ":entry:" + id }
func (q *RedisQueue) readyKey() string          { return q.cfg.Namespace + ":ready" }

// Enqueue stores the entry hash and schedules it for immediate delivery.
// Re-enqueueing an existing ID (coordinator retry of a failed job) resets
// its delivery count and schedule.
func (q *RedisQueue) Enqueue(ctx context.Context, entry domain.QueueEntry) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.entryKey(entry.ID), map[string]any{
		"name":    entry.Name,
		"payload": string(entry.Payload),
		"attempt": 0,
	})
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", entry.ID, err)
	}
	return nil
}

// Receive blocks until an entry is ready or ctx is done. Each call pops at
// most one entry and bumps its delivery count.
func (q *RedisQueue) Receive(ctx context.Context) (domain.Delivery, error) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		entry, ok, err := q.tryPop(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisDelivery{queue: q, entry: entry}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryPop pops the lowest-scored entry and returns it when due. Entries
// scheduled in the future are pushed back; the pop/push pair is not atomic,
// so two consumers may briefly reorder delayed entries, but no entry is
// lost.
func (q *RedisQueue) tryPop(ctx context.Context) (domain.QueueEntry, bool, error) {
	members, err := q.client.ZPopMin(ctx, q.readyKey(), 1).Result()
	if err != nil {
		return domain.QueueEntry{}, false, fmt.Errorf("queue: pop: %w", err)
	}
	if len(members) == 0 {
		return domain.QueueEntry{}, false, nil
	}

	z := members[0]
	id, _ := z.Member.(string)
	if z.Score > float64(time.Now().UnixMilli()) {
		if err := q.client.ZAdd(ctx, q.readyKey(), z).Err(); err != nil {
			return domain.QueueEntry{}, false, fmt.Errorf("queue: reschedule %s: %w", id, err)
		}
		return domain.QueueEntry{}, false, nil
	}

	key := q.entryKey(id)
	fields, err := q.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.QueueEntry{}, false, fmt.Errorf("queue: load entry %s: %w", id, err)
	}
	if len(fields) == 0 {
		// Entry hash was removed (coordinator delete) while the ID was
		// still scheduled; skip it.
		return domain.QueueEntry{}, false, nil
	}

	attempt, err := q.client.HIncrBy(ctx, key, "attempt", 1).Result()
	if err != nil {
		return domain.QueueEntry{}, false, fmt.Errorf("queue: bump attempt %s: %w", id, err)
	}

	return domain.QueueEntry{
		ID:      id,
		Name:    fields["name"],
		Payload: []byte(fields["payload"]),
		Attempt: int(attempt),
	}, true, nil
}

// Remove drops any pending entry for id. Missing entries are not an error.
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.readyKey(), id)
	pipe.Del(ctx, q.entryKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("queue: remove %s: %w", id, err)
	}
	return nil
}

// retryDelay computes the backoff before redelivering after the given
// delivery attempt: RetryInitial * 2^(attempt-1), capped at RetryMax.
func (q *RedisQueue) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(q.cfg.RetryInitial) * math.Pow(2, float64(attempt-1)))
	if d > q.cfg.RetryMax || d <= 0 {
		d = q.cfg.RetryMax
	}
	return d
}

type redisDelivery struct {
	queue *RedisQueue
	entry domain.QueueEntry
}

func (d *redisDelivery) Entry() domain.QueueEntry { return d.entry }

// Ack removes the entry permanently.
func (d *redisDelivery) Ack(ctx context.Context) error {
	if err := d.queue.client.Del(ctx, d.queue.entryKey(d.entry.ID)).Err(); err != nil {
		return fmt.Errorf("queue: ack %s: %w", d.entry.ID, err)
	}
	return nil
}

// Fail reschedules the entry with backoff, or drops it once the delivery
// budget is spent.
func (d *redisDelivery) Fail(ctx context.Context) error {
	q := d.queue
	if d.entry.Attempt >= q.cfg.MaxDeliveries {
		if err := q.client.Del(ctx, q.entryKey(d.entry.ID)).Err(); err != nil {
			return fmt.Errorf("queue: drop %s: %w", d.entry.ID, err)
		}
		return nil
	}

	runAt := time.Now().Add(q.retryDelay(d.entry.Attempt))
	err := q.client.ZAdd(ctx, q.readyKey(), redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: d.entry.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: reschedule %s: %w", d.entry.ID, err)
	}
	return nil
}
