package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboarding/internal/ratelimit/metrics"
	"onboarding/internal/ratelimit/models"
	"onboarding/internal/ratelimit/ports/mocks"
	"onboarding/internal/ratelimit/store/bucket"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
)

//go:generate mockgen -source=ports/ports.go -destination=ports/mocks/mocks.go -package=mocks BucketStore

const hour = 3600000 * time.Millisecond

type ServiceSuite struct {
	suite.Suite
	now     time.Time
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	svc, err := New(
		bucket.NewInMemoryBucketStore(bucket.WithClock(clock)),
		WithClock(clock),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.service = svc
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestSixthCallInWindowIsRefused() {
	key := "198.51.100.7"
	for i := 1; i <= 5; i++ {
		result, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceApplicationCreate, 5, hour)
		s.Require().NoError(err, "call %d", i)
		s.True(result.Allowed)
		s.Equal(5-i, result.Remaining)
	}

	result, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceApplicationCreate, 5, hour)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimitExceeded))

	var exceeded *ExceededError
	s.Require().ErrorAs(err, &exceeded)
	s.Equal(0, exceeded.Result.Remaining)
	s.Equal(models.ResourceApplicationCreate, exceeded.Resource)
	s.Equal(3600, exceeded.RetryAfterSeconds())
	s.False(result.Allowed)
	s.Equal(0, result.Remaining)

	var ra httputil.RetryAfterError
	s.Require().ErrorAs(err, &ra)

	s.InDelta(6, testutil.ToFloat64(s.metrics.Checks.WithLabelValues("application_create")), 0)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Denials.WithLabelValues("application_create")), 0)
}

func (s *ServiceSuite) TestRetryAfterRoundsUp() {
	key := "app-1"
	_, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPVerify, 1, time.Minute)
	s.Require().NoError(err)

	s.now = s.now.Add(59*time.Second + 500*time.Millisecond)
	_, err = s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPVerify, 1, time.Minute)
	var exceeded *ExceededError
	s.Require().ErrorAs(err, &exceeded)
	s.Equal(1, exceeded.RetryAfterSeconds())
}

func (s *ServiceSuite) TestWindowRollsOver() {
	key := "203.0.113.5"
	for range 3 {
		_, _ = s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPSend, 2, time.Minute)
	}
	s.now = s.now.Add(time.Minute)

	result, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPSend, 2, time.Minute)
	s.Require().NoError(err)
	s.Equal(1, result.Remaining)
}

func (s *ServiceSuite) TestResourcesAreCountedSeparately() {
	key := "203.0.113.5"
	_, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPSend, 1, time.Minute)
	s.Require().NoError(err)
	_, err = s.service.CheckRateLimit(s.ctx, key, models.ResourceApplicationCreate, 1, time.Minute)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestGetInfo() {
	s.Run("unknown key has the full allowance", func() {
		info, err := s.service.GetInfo(s.ctx, "fresh", models.ResourceDocumentUpload, 20, hour)
		s.Require().NoError(err)
		s.True(info.Allowed)
		s.Equal(20, info.Remaining)
		s.Equal(s.now.Add(hour), info.ResetAt)
	})

	s.Run("does not increment", func() {
		key := "app-info"
		first, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceDocumentUpload, 20, hour)
		s.Require().NoError(err)

		for range 3 {
			info, err := s.service.GetInfo(s.ctx, key, models.ResourceDocumentUpload, 20, hour)
			s.Require().NoError(err)
			s.Equal(19, info.Remaining)
			s.Equal(first.ResetAt, info.ResetAt)
		}
	})
}

func (s *ServiceSuite) TestCheckAll() {
	checks := func(app string) []models.Check {
		return []models.Check{
			{Key: "192.0.2.1", Resource: models.ResourceOTPVerify, Limit: 20, Window: hour},
			{Key: app, Resource: models.ResourceOTPVerify, Limit: 2, Window: 15 * time.Minute},
		}
	}

	s.Run("returns the tightest result", func() {
		result, err := s.service.CheckAll(s.ctx, checks("app-a"))
		s.Require().NoError(err)
		s.Equal(2, result.Limit)
		s.Equal(1, result.Remaining)
	})

	s.Run("any exceeded check refuses the request", func() {
		_, err := s.service.CheckAll(s.ctx, checks("app-b"))
		s.Require().NoError(err)
		_, err = s.service.CheckAll(s.ctx, checks("app-b"))
		s.Require().NoError(err)

		_, err = s.service.CheckAll(s.ctx, checks("app-b"))
		var exceeded *ExceededError
		s.Require().ErrorAs(err, &exceeded)
		s.Equal(2, exceeded.Result.Limit)
	})

	s.Run("empty check list allows", func() {
		result, err := s.service.CheckAll(s.ctx, nil)
		s.Require().NoError(err)
		s.Nil(result)
	})
}

func (s *ServiceSuite) TestRejectsBadArguments() {
	_, err := s.service.CheckRateLimit(s.ctx, "", models.ResourceOTPSend, 1, time.Minute)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	_, err = s.service.CheckRateLimit(s.ctx, "k", models.ResourceOTPSend, 0, time.Minute)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	_, err = s.service.GetInfo(s.ctx, "k", models.ResourceOTPSend, 1, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestConcurrentCallersNeverExceedLimit() {
	const limit, callers = 25, 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for range callers {
		wg.Go(func() {
			_, err := s.service.CheckRateLimit(s.ctx, "198.51.100.99", models.ResourceOTPSend, limit, hour)
			if err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	s.Equal(limit, allowed)
}

func (s *ServiceSuite) TestStoreFailureIsInternal() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockBucketStore(ctrl)
	svc, err := New(store, WithMetrics(s.metrics))
	s.Require().NoError(err)

	store.EXPECT().
		Increment(gomock.Any(), "rl:otp_send:k", time.Minute).
		Return(0, time.Time{}, errors.New("connection refused"))

	_, err = svc.CheckRateLimit(s.ctx, "k", models.ResourceOTPSend, 1, time.Minute)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
	s.InDelta(1, testutil.ToFloat64(s.metrics.StoreFails.WithLabelValues("otp_send")), 0)
}

func (s *ServiceSuite) TestReset() {
	key := "198.51.100.1"
	_, err := s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPSend, 1, hour)
	s.Require().NoError(err)
	s.Require().NoError(s.service.Reset(s.ctx, key, models.ResourceOTPSend))

	_, err = s.service.CheckRateLimit(s.ctx, key, models.ResourceOTPSend, 1, hour)
	s.Require().NoError(err)
}
