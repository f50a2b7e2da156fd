package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const testWindow = time.Hour

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	now   time.Time
	ctx   context.Context
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore(WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) TestIncrement() {
	s.Run("first hit opens the window", func() {
		count, resetAt, err := s.store.Increment(s.ctx, "rl:test:first", testWindow)
		s.Require().NoError(err)
		s.Equal(1, count)
		s.Equal(s.now.Add(testWindow), resetAt)
	})

	s.Run("later hits keep the window end", func() {
		key := "rl:test:same-window"
		_, first, err := s.store.Increment(s.ctx, key, testWindow)
		s.Require().NoError(err)
		s.now = s.now.Add(10 * time.Minute)

		count, resetAt, err := s.store.Increment(s.ctx, key, testWindow)
		s.Require().NoError(err)
		s.Equal(2, count)
		s.Equal(first, resetAt)
	})

	s.Run("window end starts a fresh count", func() {
		key := "rl:test:rollover"
		for range 3 {
			_, _, err := s.store.Increment(s.ctx, key, testWindow)
			s.Require().NoError(err)
		}
		s.now = s.now.Add(testWindow)

		count, resetAt, err := s.store.Increment(s.ctx, key, testWindow)
		s.Require().NoError(err)
		s.Equal(1, count)
		s.Equal(s.now.Add(testWindow), resetAt)
	})

	s.Run("keys are independent", func() {
		_, _, err := s.store.Increment(s.ctx, "rl:test:a", testWindow)
		s.Require().NoError(err)
		count, _, err := s.store.Increment(s.ctx, "rl:test:b", testWindow)
		s.Require().NoError(err)
		s.Equal(1, count)
	})
}

func (s *InMemoryBucketStoreSuite) TestPeek() {
	s.Run("unknown key reports zero", func() {
		count, resetAt, err := s.store.Peek(s.ctx, "rl:test:unknown")
		s.Require().NoError(err)
		s.Zero(count)
		s.True(resetAt.IsZero())
	})

	s.Run("does not consume", func() {
		key := "rl:test:peek"
		_, _, err := s.store.Increment(s.ctx, key, testWindow)
		s.Require().NoError(err)

		for range 3 {
			count, _, err := s.store.Peek(s.ctx, key)
			s.Require().NoError(err)
			s.Equal(1, count)
		}
	})

	s.Run("expired window reports zero", func() {
		key := "rl:test:peek-expired"
		_, _, err := s.store.Increment(s.ctx, key, time.Minute)
		s.Require().NoError(err)
		s.now = s.now.Add(time.Minute)

		count, _, err := s.store.Peek(s.ctx, key)
		s.Require().NoError(err)
		s.Zero(count)
	})
}

func (s *InMemoryBucketStoreSuite) TestReset() {
	key := "rl:test:reset"
	for range 5 {
		_, _, err := s.store.Increment(s.ctx, key, testWindow)
		s.Require().NoError(err)
	}

	s.Require().NoError(s.store.Reset(s.ctx, key))

	count, _, err := s.store.Increment(s.ctx, key, testWindow)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *InMemoryBucketStoreSuite) TestSweepDropsEndedWindows() {
	_, _, err := s.store.Increment(s.ctx, "rl:test:stale", time.Second)
	s.Require().NoError(err)
	s.now = s.now.Add(time.Minute)

	for i := 1; i < sweepEvery; i++ {
		_, _, err := s.store.Increment(s.ctx, "rl:test:hot", testWindow)
		s.Require().NoError(err)
	}

	s.store.mu.Lock()
	_, stale := s.store.buckets["rl:test:stale"]
	s.store.mu.Unlock()
	s.False(stale)
}

func (s *InMemoryBucketStoreSuite) TestConcurrent() {
	key := "rl:test:concurrent"
	const callers = 200
	var wg sync.WaitGroup
	seen := make([]int, callers)

	for i := range callers {
		wg.Go(func() {
			count, _, err := s.store.Increment(s.ctx, key, testWindow)
			s.NoError(err)
			seen[i] = count
		})
	}
	wg.Wait()

	// Every caller observes a distinct position in the window.
	positions := make(map[int]bool, callers)
	for _, c := range seen {
		positions[c] = true
	}
	s.Len(positions, callers)

	count, _, err := s.store.Peek(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(callers, count)
}
