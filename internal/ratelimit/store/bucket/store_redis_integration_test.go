//go:build integration

package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "onboarding/internal/platform/redis"
	"onboarding/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *platformredis.Client
	store *RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, &RedisBucketStoreSuite{redis: containers.StartRedis(t)})
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.ctx = context.Background()
	containers.ResetRedis(s.T(), s.redis)
	s.store = NewRedisBucketStore(s.redis)
}

func (s *RedisBucketStoreSuite) TestIncrementSetsWindowOnce() {
	key := "rl:otp_send:203.0.113.9"
	count, first, err := s.store.Increment(s.ctx, key, time.Hour)
	s.Require().NoError(err)
	s.Equal(1, count)
	s.WithinDuration(time.Now().Add(time.Hour), first, 5*time.Second)

	count, second, err := s.store.Increment(s.ctx, key, time.Hour)
	s.Require().NoError(err)
	s.Equal(2, count)
	s.WithinDuration(first, second, 2*time.Second)

	ttl, err := s.redis.PTTL(s.ctx, key).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	key := "rl:otp_verify:short"
	_, _, err := s.store.Increment(s.ctx, key, 200*time.Millisecond)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		count, _, err := s.store.Peek(s.ctx, key)
		return err == nil && count == 0
	}, 3*time.Second, 50*time.Millisecond)

	count, _, err := s.store.Increment(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *RedisBucketStoreSuite) TestPeekAndReset() {
	key := "rl:document_upload:app"
	for range 3 {
		_, _, err := s.store.Increment(s.ctx, key, time.Hour)
		s.Require().NoError(err)
	}

	count, resetAt, err := s.store.Peek(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(3, count)
	s.False(resetAt.IsZero())

	s.Require().NoError(s.store.Reset(s.ctx, key))
	count, _, err = s.store.Peek(s.ctx, key)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *RedisBucketStoreSuite) TestConcurrentIncrementsAreAtomic() {
	key := "rl:application_create:concurrent"
	const callers = 50
	var wg sync.WaitGroup
	for range callers {
		wg.Go(func() {
			_, _, err := s.store.Increment(s.ctx, key, time.Minute)
			s.NoError(err)
		})
	}
	wg.Wait()

	count, _, err := s.store.Peek(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(callers, count)
}
