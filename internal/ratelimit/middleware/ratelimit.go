// Package middleware screens HTTP requests against an ordered table of rate
// limit policies before they reach the handlers.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"onboarding/internal/ratelimit"
	"onboarding/internal/ratelimit/models"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/platform/privacy"
	"onboarding/pkg/requestcontext"
)

// Limiter is satisfied by *ratelimit.Service.
type Limiter interface {
	CheckAll(ctx context.Context, checks []models.Check) (*models.Decision, error)
}

type Middleware struct {
	limiter  Limiter
	fallback Limiter
	breaker  *circuitBreaker
	policies []compiledPolicy
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFallback routes checks to fallback while the primary limiter keeps
// failing. Responses served in that mode carry X-RateLimit-Status: degraded.
func WithFallback(fallback Limiter, failureThreshold, successThreshold int) Option {
	return func(m *Middleware) {
		m.fallback = fallback
		m.breaker = newCircuitBreaker(failureThreshold, successThreshold)
	}
}

func New(limiter Limiter, policies []Policy, opts ...Option) (*Middleware, error) {
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}
	m := &Middleware{
		limiter:  limiter,
		policies: compile(policies),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m, nil
}

// Handler enforces the first policy matching each request. Requests no policy
// matches pass through untouched.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}
		policy, rctx := match(m.policies, r)
		if policy == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		checks := m.checksFor(ctx, policy, rctx.URLParam(policy.Param))
		result, err := m.check(ctx, w, checks)

		var exceeded *ratelimit.ExceededError
		switch {
		case errors.As(err, &exceeded):
			addRateLimitHeaders(w, &exceeded.Result)
			writeRateLimitExceeded(w, exceeded)
			return
		case err != nil:
			// Fail open: a broken counter store must not take onboarding down.
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"resource", policy.Resource,
				"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			)
		default:
			addRateLimitHeaders(w, result)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) check(ctx context.Context, w http.ResponseWriter, checks []models.Check) (*models.Decision, error) {
	if m.breaker == nil {
		return m.limiter.CheckAll(ctx, checks)
	}
	if m.breaker.isOpen() {
		// Try the primary; stay on the fallback until it recovers.
		result, err := m.limiter.CheckAll(ctx, checks)
		if err == nil || isExceeded(err) {
			if m.breaker.recordSuccess() {
				m.logger.InfoContext(ctx, "rate limit store recovered")
				return result, err
			}
		} else {
			m.breaker.recordFailure()
		}
		w.Header().Set("X-RateLimit-Status", "degraded")
		return m.fallback.CheckAll(ctx, checks)
	}

	result, err := m.limiter.CheckAll(ctx, checks)
	if err == nil || isExceeded(err) {
		m.breaker.recordSuccess()
		return result, err
	}
	if m.breaker.recordFailure() {
		m.logger.WarnContext(ctx, "rate limit store failing, using fallback", "error", err)
		w.Header().Set("X-RateLimit-Status", "degraded")
		return m.fallback.CheckAll(ctx, checks)
	}
	return result, err
}

func (m *Middleware) checksFor(ctx context.Context, p *compiledPolicy, applicationID string) []models.Check {
	checks := make([]models.Check, 0, len(p.Rules))
	for _, rule := range p.Rules {
		var key string
		switch rule.Source {
		case models.KeySourceIP:
			key = requestcontext.ClientIP(ctx)
			if key == "" {
				key = "unknown"
			}
		case models.KeySourceApplication:
			key = applicationID
		}
		if key == "" {
			continue
		}
		checks = append(checks, models.Check{
			Key:      key,
			Resource: p.Resource,
			Limit:    rule.Limit,
			Window:   rule.Window,
		})
	}
	return checks
}

func isExceeded(err error) bool {
	var exceeded *ratelimit.ExceededError
	return errors.As(err, &exceeded)
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Decision) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, exceeded *ratelimit.ExceededError) {
	w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
	httputil.WriteJSON(w, http.StatusTooManyRequests, models.NewExceededBody(exceeded.Resource, exceeded.RetryAfterSeconds()))
}
