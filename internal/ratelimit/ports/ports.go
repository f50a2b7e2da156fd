// Package ports defines the storage contract shared by the rate limiter and
// its bucket stores.
package ports

import (
	"context"
	"time"
)

// BucketStore keeps fixed-window counters. Increment must be atomic per key
// so concurrent callers never lose an update.
type BucketStore interface {
	// Increment adds one to key's counter, opening a new window of the given
	// length when none is active, and returns the new count and window end.
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)

	// Peek returns the current count and window end without incrementing.
	// A key with no active window reports zero and the zero time.
	Peek(ctx context.Context, key string) (count int, resetAt time.Time, err error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}
