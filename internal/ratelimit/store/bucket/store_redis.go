package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript increments the counter, starts the window on the first hit
// and returns the count with the remaining window in milliseconds. A key left
// without a TTL (e.g. after a crash between INCR and PEXPIRE) is repaired.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisBucketStore implements ports.BucketStore on Redis so every instance
// shares the same counters.
type RedisBucketStore struct {
	client redis.UniversalClient
	clock  func() time.Time
}

func NewRedisBucketStore(client redis.UniversalClient, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RedisOption func(*RedisBucketStore)

func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisBucketStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func (s *RedisBucketStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit bucket: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("increment rate limit bucket: unexpected reply %v", res)
	}
	return int(res[0]), s.clock().Add(time.Duration(res[1]) * time.Millisecond), nil
}

func (s *RedisBucketStore) Peek(ctx context.Context, key string) (int, time.Time, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("peek rate limit bucket: %w", err)
	}
	count, err := get.Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("peek rate limit bucket: %w", err)
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		return 0, time.Time{}, nil
	}
	return count, s.clock().Add(remaining), nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit bucket: %w", err)
	}
	return nil
}
