package retry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* FailedDelivery records a webhook failure with enough context to replay it
 * later: inbound payloads we could not process, and outbound deliveries a
 * subscriber did not accept. Rows are independent; two dispatch attempts
 * racing may create two rows for one logical failure, and subscribers are
 * expected to handle duplicate deliveries idempotently (at-least-once).
 */

// Source distinguishes where a failure happened.
type Source int

const (
	Inbound Source = iota + 1
	Outbound
)

// String returns the string representation of the source
func (s Source) String() string {
	switch s {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// NewSource creates a Source from a string
func NewSource(str string) Source {
	switch str {
	case "inbound":
		return Inbound
	case "outbound":
		return Outbound
	default:
		return 0
	}
}

// Validate checks if the source is valid
func (s Source) Validate() error {
	if s != Inbound && s != Outbound {
		return fmt.Errorf("invalid failure source: %d", s)
	}
	return nil
}

type FailedDelivery struct {
	ID     string
	Source Source

	// Provider names the third party for inbound failures;
	// SubscriptionID names the target for outbound failures.
	Provider       string
	SubscriptionID string

	EventType string
	Payload   []byte
	// PayloadDigest is the SHA-256 of Payload, for identifying a raw body
	// in logs without reproducing it.
	PayloadDigest string
	Error         string

	FirstFailedAt time.Time
	AttemptCount  int
	NextRetryAt   time.Time

	// ResolvedAt set means replay succeeded; AbandonedAt set means the
	// attempt ceiling was hit and the row is kept for inspection.
	ResolvedAt   time.Time
	AbandonedAt  time.Time
	ClaimedUntil time.Time
}

// Resolved reports whether the failure has been successfully replayed.
func (f FailedDelivery) Resolved() bool {
	return !f.ResolvedAt.IsZero()
}

// Abandoned reports whether the failure is permanently failed.
func (f FailedDelivery) Abandoned() bool {
	return !f.AbandonedAt.IsZero()
}

// NewInboundFailure records a third-party webhook we could not process.
func NewInboundFailure(provider, eventType string, payload []byte, cause error) FailedDelivery {
	return newFailure(Inbound, provider, "", eventType, payload, cause)
}

// NewOutboundFailure records a delivery a subscriber did not accept.
func NewOutboundFailure(subscriptionID, eventType string, payload []byte, cause error) FailedDelivery {
	return newFailure(Outbound, "", subscriptionID, eventType, payload, cause)
}

func newFailure(source Source, provider, subscriptionID, eventType string, payload []byte, cause error) FailedDelivery {
	now := time.Now()
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	digest := sha256.Sum256(payload)
	return FailedDelivery{
		ID:             uuid.New().String(),
		Source:         source,
		Provider:       provider,
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		Payload:        payload,
		PayloadDigest:  hex.EncodeToString(digest[:]),
		Error:          message,
		FirstFailedAt:  now,
		AttemptCount:   0,
		NextRetryAt:    now,
	}
}

// NextRetryAt computes the exponential backoff schedule:
// now + base * 2^attemptCount, capped.
func NextRetryAt(now time.Time, base time.Duration, attemptCount int, cap time.Duration) time.Time {
	backoff := base
	for i := 0; i < attemptCount; i++ {
		backoff *= 2
		if backoff >= cap {
			backoff = cap
			break
		}
	}
	if backoff > cap {
		backoff = cap
	}
	return now.Add(backoff)
}
