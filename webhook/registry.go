package webhook

import "context"

/* Small, focused interfaces for the subscription registry.
 * The dispatcher only needs Reader; the management API needs both.
 */

// Reader provides read operations for subscriptions
type Reader interface {
	Get(ctx context.Context, id string) (Subscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Subscription, error)
}

// Writer provides write operations for subscriptions
type Writer interface {
	Store(ctx context.Context, sub Subscription) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// Registry combines read and write access to subscription storage.
type Registry interface {
	Reader
	Writer
	Close(ctx context.Context) error
}
