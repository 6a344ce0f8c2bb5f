package retry

import (
	"context"
	"time"
)

/* Small, focused interfaces for the failed-delivery store.
 * The request path only records failures; claiming and resolution belong to
 * the replay worker.
 */

// Recorder persists new failures from the request path.
type Recorder interface {
	Record(ctx context.Context, failure FailedDelivery) error
}

// Claimer hands out due failures to replay workers.
type Claimer interface {
	/* ClaimDue atomically leases up to limit unresolved failures whose
	 * NextRetryAt has passed and whose previous lease (if any) expired.
	 * Two workers never hold the same row at once; a worker that crashes
	 * mid-delivery simply lets its lease lapse.
	 */
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]FailedDelivery, error)
}

// Resolver finalizes claimed failures.
type Resolver interface {
	MarkResolved(ctx context.Context, id string, at time.Time) error
	Reschedule(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time) error
	// MarkAbandoned leaves the row in a terminal failed state for operator
	// inspection; it is never silently dropped.
	MarkAbandoned(ctx context.Context, id string, at time.Time) error
}

// Store combines the full failed-delivery lifecycle.
type Store interface {
	Recorder
	Claimer
	Resolver
	Get(ctx context.Context, id string) (FailedDelivery, error)
	Close(ctx context.Context) error
}
