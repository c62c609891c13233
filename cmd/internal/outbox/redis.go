package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"interviewprep/cmd/internal/quota"
)

// DefaultRedisKey is the list holding pending outcomes.
const DefaultRedisKey = "prep:outbox:outcomes"

// RedisQueue stores outcomes as JSON in three Redis lists: pending (LPUSH in,
// popped from the right), key+":processing" for leases and key+":dead".
type RedisQueue struct {
	client     redis.Cmdable
	key        string
	processing string
	dead       string
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("outbox: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping checks connectivity.
func Ping(ctx context.Context, c redis.Cmdable) error {
	return c.Ping(ctx).Err()
}

func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{
		client:     client,
		key:        key,
		processing: key + ":processing",
		dead:       key + ":dead",
	}
}

func (q *RedisQueue) Push(ctx context.Context, o quota.Outcome) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("outbox: encode outcome: %w", err)
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Pop moves the oldest outcome onto the processing list in one LMOVE. An entry
// that does not decode is moved to the dead-letter list.
func (q *RedisQueue) Pop(ctx context.Context) (Lease, bool, error) {
	raw, err := q.client.LMove(ctx, q.key, q.processing, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, err
	}

	var o quota.Outcome
	if derr := json.Unmarshal([]byte(raw), &o); derr != nil {
		if _, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.processing, 1, raw)
			p.LPush(ctx, q.dead, raw)
			return nil
		}); err != nil {
			return Lease{}, false, errors.Join(fmt.Errorf("outbox: decode outcome: %w", derr), err)
		}
		return Lease{}, false, fmt.Errorf("outbox: decode outcome: %w", derr)
	}
	return Lease{Outcome: o, ref: raw}, true, nil
}

func (q *RedisQueue) Ack(ctx context.Context, l Lease) error {
	return q.client.LRem(ctx, q.processing, 1, l.ref).Err()
}

// Retry swaps the lease for the updated outcome at the tail in one MULTI.
func (q *RedisQueue) Retry(ctx context.Context, l Lease) error {
	return q.settle(ctx, l, q.key)
}

func (q *RedisQueue) Bury(ctx context.Context, l Lease) error {
	return q.settle(ctx, l, q.dead)
}

func (q *RedisQueue) settle(ctx context.Context, l Lease, dest string) error {
	b, err := json.Marshal(l.Outcome)
	if err != nil {
		return fmt.Errorf("outbox: encode outcome: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, l.ref)
		p.LPush(ctx, dest, b)
		return nil
	})
	return err
}

// Recover moves the processing list back to the pop end of the pending list,
// oldest lease last so it is popped first.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

// DeadLen counts buried outcomes.
func (q *RedisQueue) DeadLen(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.dead).Result()
	return int(n), err
}
