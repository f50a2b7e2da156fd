package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboarding/internal/ratelimit"
	"onboarding/internal/ratelimit/models"
	"onboarding/internal/ratelimit/store/bucket"
	"onboarding/pkg/requestcontext"
)

type MiddlewareSuite struct {
	suite.Suite
	now      time.Time
	service  *ratelimit.Service
	policies []Policy
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	svc, err := ratelimit.New(bucket.NewInMemoryBucketStore(bucket.WithClock(clock)), ratelimit.WithClock(clock))
	s.Require().NoError(err)
	s.service = svc
	s.policies = []Policy{
		{
			Method: http.MethodPost, Pattern: "/applications/{applicationID}/otp/verify",
			Resource: models.ResourceOTPVerify,
			Rules: []Rule{
				{Source: models.KeySourceIP, Limit: 20, Window: time.Hour},
				{Source: models.KeySourceApplication, Limit: 2, Window: 15 * time.Minute},
			},
		},
		{
			Method: http.MethodPost, Pattern: "/applications/{applicationID}/otp",
			Resource: models.ResourceOTPSend,
			Rules:    []Rule{{Source: models.KeySourceIP, Limit: 1, Window: time.Hour}},
		},
		{
			Method: http.MethodPost, Pattern: "/applications",
			Resource: models.ResourceApplicationCreate,
			Rules:    []Rule{{Source: models.KeySourceIP, Limit: 2, Window: time.Hour}},
		},
	}
}

func (s *MiddlewareSuite) handler(limiter Limiter, opts ...Option) http.Handler {
	m, err := New(limiter, s.policies, opts...)
	s.Require().NoError(err)
	return m.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *MiddlewareSuite) do(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *MiddlewareSuite) TestAllowedRequestCarriesHeaders() {
	h := s.handler(s.service)

	rec := s.do(h, http.MethodPost, "/applications", "192.0.2.10")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("1", rec.Header().Get("X-RateLimit-Remaining"))
	s.Equal(strconv.FormatInt(s.now.Add(time.Hour).Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))
}

func (s *MiddlewareSuite) TestExceededReturns429WithRetryAfter() {
	h := s.handler(s.service)
	s.do(h, http.MethodPost, "/applications", "192.0.2.11")
	s.do(h, http.MethodPost, "/applications", "192.0.2.11")

	rec := s.do(h, http.MethodPost, "/applications", "192.0.2.11")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("3600", rec.Header().Get("Retry-After"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))
	s.Contains(rec.Body.String(), `"error":"rate_limit_exceeded"`)
	s.Contains(rec.Body.String(), `"retry_after_seconds":3600`)

	// Another caller is unaffected.
	rec = s.do(h, http.MethodPost, "/applications", "192.0.2.12")
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *MiddlewareSuite) TestFirstMatchingPolicyWins() {
	h := s.handler(s.service)
	path := "/applications/3f1d2c9e-0000-4000-8000-000000000001/otp/verify"

	s.Equal(http.StatusNoContent, s.do(h, http.MethodPost, path, "192.0.2.20").Code)
	s.Equal(http.StatusNoContent, s.do(h, http.MethodPost, path, "192.0.2.21").Code)

	// Per-application limit applies even from a fresh IP.
	rec := s.do(h, http.MethodPost, path, "192.0.2.22")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("900", rec.Header().Get("Retry-After"))

	// OTP send on the same application uses its own policy.
	rec = s.do(h, http.MethodPost, "/applications/3f1d2c9e-0000-4000-8000-000000000001/otp", "192.0.2.20")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("1", rec.Header().Get("X-RateLimit-Limit"))
}

func (s *MiddlewareSuite) TestUnmatchedRequestsPassThrough() {
	h := s.handler(s.service)
	for range 5 {
		rec := s.do(h, http.MethodGet, "/applications/abc", "192.0.2.30")
		s.Equal(http.StatusNoContent, rec.Code)
		s.Empty(rec.Header().Get("X-RateLimit-Limit"))
	}
}

func (s *MiddlewareSuite) TestDisabled() {
	h := s.handler(s.service, WithDisabled(true))
	for range 5 {
		s.Equal(http.StatusNoContent, s.do(h, http.MethodPost, "/applications", "192.0.2.40").Code)
	}
}

func (s *MiddlewareSuite) TestStoreFailureFailsOpen() {
	h := s.handler(brokenLimiter{})
	rec := s.do(h, http.MethodPost, "/applications", "192.0.2.50")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(rec.Header().Get("X-RateLimit-Limit"))
}

func (s *MiddlewareSuite) TestFallbackAfterRepeatedFailures() {
	primary := &flakyLimiter{failing: true, next: s.service}
	fallbackSvc, err := ratelimit.New(bucket.NewInMemoryBucketStore())
	s.Require().NoError(err)
	h := s.handler(primary, WithFallback(fallbackSvc, 2, 1))

	rec := s.do(h, http.MethodPost, "/applications", "192.0.2.60")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(rec.Header().Get("X-RateLimit-Status"))

	rec = s.do(h, http.MethodPost, "/applications", "192.0.2.60")
	s.Equal("degraded", rec.Header().Get("X-RateLimit-Status"))

	// The fallback still enforces limits.
	s.do(h, http.MethodPost, "/applications", "192.0.2.60")
	rec = s.do(h, http.MethodPost, "/applications", "192.0.2.60")
	s.Equal(http.StatusTooManyRequests, rec.Code)

	primary.failing = false
	rec = s.do(h, http.MethodPost, "/applications", "192.0.2.61")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(rec.Header().Get("X-RateLimit-Status"))
}

type brokenLimiter struct{}

func (brokenLimiter) CheckAll(context.Context, []models.Check) (*models.Decision, error) {
	return nil, errors.New("redis: connection refused")
}

type flakyLimiter struct {
	failing bool
	next    Limiter
}

func (f *flakyLimiter) CheckAll(ctx context.Context, checks []models.Check) (*models.Decision, error) {
	if f.failing {
		return nil, errors.New("redis: i/o timeout")
	}
	return f.next.CheckAll(ctx, checks)
}
