package models

import "fmt"

// ExceededBody is the 429 payload: the usual error envelope plus the number
// of seconds until the window reopens.
type ExceededBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	RetryAfter  int    `json:"retry_after_seconds"`
}

// NewExceededBody describes a refused request on resource.
func NewExceededBody(resource Resource, retryAfter int) ExceededBody {
	return ExceededBody{
		Error:       "rate_limit_exceeded",
		Description: fmt.Sprintf("too many %s requests, retry in %ds", resource, retryAfter),
		RetryAfter:  retryAfter,
	}
}
