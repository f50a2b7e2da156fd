package bucket

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how many increments run between expired-window sweeps.
const sweepEvery = 1024

// InMemoryBucketStore implements ports.BucketStore with fixed-window counters
// guarded by a single mutex. It is not shared across processes; use
// RedisBucketStore when several instances serve traffic.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*fixedWindow
	clock   func() time.Time
	ops     int
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

type Option func(*InMemoryBucketStore)

func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryBucketStore creates a new in-memory bucket store.
func NewInMemoryBucketStore(opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*fixedWindow),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryBucketStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweep(now)
	}

	fw := s.buckets[key]
	if fw == nil || !now.Before(fw.resetAt) {
		fw = &fixedWindow{resetAt: now.Add(window)}
		s.buckets[key] = fw
	}
	fw.count++
	return fw.count, fw.resetAt, nil
}

func (s *InMemoryBucketStore) Peek(_ context.Context, key string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fw := s.buckets[key]
	if fw == nil || !s.clock().Before(fw.resetAt) {
		return 0, time.Time{}, nil
	}
	return fw.count, fw.resetAt, nil
}

// Reset clears the rate limit counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// sweep drops windows that have ended. Must be called while holding s.mu.
func (s *InMemoryBucketStore) sweep(now time.Time) {
	for key, fw := range s.buckets {
		if !now.Before(fw.resetAt) {
			delete(s.buckets, key)
		}
	}
}
