// Package ratelimit counts requests per (key, resource) over fixed windows and
// refuses callers that exceed their limit.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"time"

	"onboarding/internal/ratelimit/metrics"
	"onboarding/internal/ratelimit/models"
	"onboarding/internal/ratelimit/ports"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/privacy"
)

type Service struct {
	buckets ports.BucketStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(buckets ports.BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}
	svc := &Service{
		buckets: buckets,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckRateLimit counts one request for key against resource. Once the count
// passes limit inside the current window it returns an *ExceededError whose
// result has Remaining 0 and a retry-after hint in whole seconds.
func (s *Service) CheckRateLimit(ctx context.Context, key string, resource models.Resource, limit int, window time.Duration) (*models.Decision, error) {
	if err := validateCheck(key, limit, window); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementChecks(resource.String())
	}

	count, resetAt, err := s.buckets.Increment(ctx, models.BucketKey(resource, key), window)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors(resource.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}

	result := s.result(count, limit, resetAt)
	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.IncrementDenials(resource.String())
		}
		s.logger.InfoContext(ctx, "rate limit exceeded",
			"resource", resource,
			"key", logKey(key),
			"limit", limit,
			"window_seconds", int(window.Seconds()),
			"retry_after", result.RetryAfter,
		)
		return result, &ExceededError{Resource: resource, Result: *result}
	}
	return result, nil
}

// GetInfo reports the remaining allowance and window end without counting a
// request. A key with no active window reports the full limit.
func (s *Service) GetInfo(ctx context.Context, key string, resource models.Resource, limit int, window time.Duration) (*models.Decision, error) {
	if err := validateCheck(key, limit, window); err != nil {
		return nil, err
	}
	count, resetAt, err := s.buckets.Peek(ctx, models.BucketKey(resource, key))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read rate limit")
	}
	if resetAt.IsZero() {
		resetAt = s.clock().Add(window)
	}
	return s.result(count, limit, resetAt), nil
}

// CheckAll evaluates checks in order and stops at the first one that is
// exceeded; every check must pass for the request to proceed. On success the
// result with the fewest remaining requests is returned.
func (s *Service) CheckAll(ctx context.Context, checks []models.Check) (*models.Decision, error) {
	var tightest *models.Decision
	for _, c := range checks {
		result, err := s.CheckRateLimit(ctx, c.Key, c.Resource, c.Limit, c.Window)
		if err != nil {
			return result, err
		}
		if tightest == nil || result.Remaining < tightest.Remaining {
			tightest = result
		}
	}
	return tightest, nil
}

// Reset clears the counter for key and resource.
func (s *Service) Reset(ctx context.Context, key string, resource models.Resource) error {
	if err := s.buckets.Reset(ctx, models.BucketKey(resource, key)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate limit")
	}
	return nil
}

func (s *Service) result(count, limit int, resetAt time.Time) *models.Decision {
	result := &models.Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = retryAfterSeconds(resetAt.Sub(s.clock()))
	}
	return result
}

// retryAfterSeconds rounds up so a client never retries inside the window.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func validateCheck(key string, limit int, window time.Duration) error {
	switch {
	case key == "":
		return dErrors.New(dErrors.CodeBadRequest, "rate limit key is required")
	case limit <= 0:
		return dErrors.New(dErrors.CodeBadRequest, "rate limit must be positive")
	case window <= 0:
		return dErrors.New(dErrors.CodeBadRequest, "rate limit window must be positive")
	}
	return nil
}

// logKey keeps raw client IPs out of logs.
func logKey(key string) string {
	if net.ParseIP(key) != nil {
		return privacy.AnonymizeIP(key)
	}
	return key
}
