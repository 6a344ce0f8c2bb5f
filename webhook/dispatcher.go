package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/frontdeskhq/resilience/retry"
	"github.com/frontdeskhq/resilience/signature"
	"github.com/rs/zerolog"
)

/* Dispatcher fans a domain event out to every active subscription of the
 * tenant that listens for the event type. Each delivery is one synchronous
 * HTTP POST signed with the subscription's own secret; failures are handed
 * to the retry store, never retried inline, and never surfaced to the
 * request that raised the event. One subscriber failing does not affect
 * delivery to the others.
 *
 * Endpoint URLs are validated against internal address ranges at
 * subscription creation only, not re-resolved per delivery.
 */

const (
	// SignatureHeader carries the hex HMAC-SHA256 over the exact body sent.
	SignatureHeader = "X-Webhook-Signature"

	// EventHeader carries the event type string.
	EventHeader = "X-Webhook-Event"

	defaultDeliveryTimeout = 10 * time.Second
)

// DispatchRecorder receives delivery outcomes for metrics.
type DispatchRecorder interface {
	RecordDelivery(ctx context.Context, eventType string, success bool)
}

type Dispatcher struct {
	registry Reader
	failures retry.Recorder
	client   *http.Client
	logger   zerolog.Logger
	recorder DispatchRecorder
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient overrides the delivery client (timeout included).
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithDispatchRecorder attaches a metrics recorder.
func WithDispatchRecorder(r DispatchRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher over a subscription registry and a
// failed-delivery recorder.
func NewDispatcher(registry Reader, failures retry.Recorder, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		failures: failures,
		client:   &http.Client{Timeout: defaultDeliveryTimeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers the event payload to every matching subscription.
// It returns an error only when the subscription list itself cannot be
// read; individual delivery failures are recorded, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, eventType EventType, payload any) error {
	if err := eventType.Validate(); err != nil {
		return fmt.Errorf("validating event type: %w", err)
	}

	subs, err := d.registry.ListByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("listing subscriptions: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}

	for _, sub := range subs {
		if !sub.IsActive || !sub.Subscribed(eventType) {
			continue
		}
		d.deliverOne(ctx, sub, eventType, body)
	}
	return nil
}

// Deliver performs a single signed delivery to one subscription. The retry
// worker uses it to replay recorded outbound failures.
func (d *Dispatcher) Deliver(ctx context.Context, sub Subscription, eventType EventType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, eventType.String())
	req.Header.Set(SignatureHeader, signature.SignSHA256Hex(sub.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("subscriber returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, sub Subscription, eventType EventType, body []byte) {
	err := d.Deliver(ctx, sub, eventType, body)
	if err == nil {
		d.record(ctx, eventType, true)
		return
	}
	d.record(ctx, eventType, false)

	d.logger.Warn().Err(err).
		Str("subscription_id", sub.ID).
		Str("event_type", eventType.String()).
		Msg("webhook delivery failed, recording for retry")

	failure := retry.NewOutboundFailure(sub.ID, eventType.String(), body, err)
	if recordErr := d.failures.Record(ctx, failure); recordErr != nil {
		// Nothing left to fall back to; the delivery is lost unless the
		// subscriber polls. Log loudly.
		d.logger.Error().Err(recordErr).
			Str("subscription_id", sub.ID).
			Msg("recording failed delivery")
	}
}

func (d *Dispatcher) record(ctx context.Context, eventType EventType, success bool) {
	if d.recorder != nil {
		d.recorder.RecordDelivery(ctx, eventType.String(), success)
	}
}
