package ratelimit

import (
	"fmt"

	"onboarding/internal/ratelimit/models"
	dErrors "onboarding/pkg/domain-errors"
)

// ExceededError is returned when a counter has gone past its limit in the
// current window. It unwraps to a rate_limit_exceeded domain error and carries
// the retry-after hint the boundary turns into a Retry-After header.
type ExceededError struct {
	Resource models.Resource
	Result   models.Decision
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %ds", e.Resource, e.Result.RetryAfter)
}

func (e *ExceededError) Unwrap() error {
	return dErrors.New(dErrors.CodeRateLimitExceeded, "too many requests, retry later")
}

// RetryAfterSeconds satisfies httputil.RetryAfterError.
func (e *ExceededError) RetryAfterSeconds() int {
	return e.Result.RetryAfter
}
