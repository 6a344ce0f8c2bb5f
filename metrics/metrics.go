package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder provides OpenTelemetry metrics export following OTel standards,
// exposed in Prometheus format. It counts rate limit decisions, webhook
// deliveries, inbound verifications and retry outcomes.
type Recorder struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	rateLimitChecks      metric.Int64Counter
	webhookDeliveries    metric.Int64Counter
	inboundVerifications metric.Int64Counter
	retryOutcomes        metric.Int64Counter
}

// NewRecorder creates a metrics recorder with a Prometheus exporter.
func NewRecorder() (*Recorder, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"resilience",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	r := &Recorder{
		meterProvider: meterProvider,
		meter:         meter,
	}
	if err := r.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}
	return r, nil
}

// registerInstruments creates and registers all metric instruments
func (r *Recorder) registerInstruments() error {
	var err error

	r.rateLimitChecks, err = r.meter.Int64Counter(
		"ratelimit.checks",
		metric.WithDescription("Rate limit decisions by operation class, outcome and store mode"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return fmt.Errorf("creating rate limit counter: %w", err)
	}

	r.webhookDeliveries, err = r.meter.Int64Counter(
		"webhook.deliveries",
		metric.WithDescription("Outbound webhook delivery attempts by event type and outcome"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return fmt.Errorf("creating delivery counter: %w", err)
	}

	r.inboundVerifications, err = r.meter.Int64Counter(
		"webhook.inbound.verifications",
		metric.WithDescription("Inbound webhook signature checks by provider and outcome"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return fmt.Errorf("creating verification counter: %w", err)
	}

	r.retryOutcomes, err = r.meter.Int64Counter(
		"webhook.retries",
		metric.WithDescription("Replay worker outcomes by failure source"),
		metric.WithUnit("{replays}"),
	)
	if err != nil {
		return fmt.Errorf("creating retry counter: %w", err)
	}

	return nil
}

// RecordRateLimitCheck counts one governor decision.
func (r *Recorder) RecordRateLimitCheck(ctx context.Context, class string, allowed bool, degraded bool) {
	mode := "normal"
	if degraded {
		mode = "degraded"
	}
	r.rateLimitChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation.class", class),
		attribute.String("outcome", outcome(allowed, "allowed", "denied")),
		attribute.String("store.mode", mode),
	))
}

// RecordDelivery counts one outbound delivery attempt.
func (r *Recorder) RecordDelivery(ctx context.Context, eventType string, success bool) {
	r.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("outcome", outcome(success, "delivered", "failed")),
	))
}

// RecordInboundVerification counts one inbound signature check.
func (r *Recorder) RecordInboundVerification(ctx context.Context, provider string, verified bool) {
	r.inboundVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome(verified, "verified", "rejected")),
	))
}

// RecordRetryOutcome counts one replay worker result.
func (r *Recorder) RecordRetryOutcome(ctx context.Context, source string, result string) {
	r.retryOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("failure.source", source),
		attribute.String("outcome", result),
	))
}

// Handler serves Prometheus-formatted metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.meterProvider != nil {
		return r.meterProvider.Shutdown(ctx)
	}
	return nil
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
