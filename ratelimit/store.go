package ratelimit

import (
	"context"
	"time"
)

/* Counter abstracts atomic increment-with-expiry over a fixed window.
 * Implementations: the shared Redis store (cross-instance) and the
 * process-local bounded map used when Redis is unreachable.
 */

// Counter increments the counter for key, starting a new window of the
// given length when the key is absent or its window has elapsed.
// It returns the count after the increment and the time the window resets.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}
