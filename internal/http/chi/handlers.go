package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"

	"github.com/frontdeskhq/resilience/inbound"
	"github.com/frontdeskhq/resilience/metrics"
	"github.com/frontdeskhq/resilience/ratelimit"
	"github.com/frontdeskhq/resilience/retry"
	"github.com/frontdeskhq/resilience/webhook"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Governor      *ratelimit.Governor
	Subscriptions webhook.UseCase
	Dispatcher    *webhook.Dispatcher
	Verifier      *inbound.Verifier
	Processor     inbound.Processor
	Failures      retry.Recorder
	Metrics       *metrics.Recorder
}

func Handlers(deps Deps) *chi.Mux {
	// Logger
	logger := httplog.NewLogger("resilience", httplog.Options{
		JSON: true,
	})
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Inbound provider webhooks: rate limited, then signature verified
	// before the body is trusted.
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(deps.Governor, ratelimit.WebhookInbound))
		r.Method(http.MethodPost, "/v1/hooks/{provider}",
			postInboundWebhook(deps.Verifier, deps.Processor, deps.Failures, deps.Metrics))
	})

	// Tenant-facing management surface.
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(deps.Governor, ratelimit.Dashboard))
		r.Method(http.MethodPost, "/v1/tenants/{tenant_id}/subscriptions", postSubscription(deps.Subscriptions))
		r.Method(http.MethodGet, "/v1/tenants/{tenant_id}/subscriptions", getSubscriptions(deps.Subscriptions))
		r.Method(http.MethodPost, "/v1/tenants/{tenant_id}/subscriptions/{id}/deactivate", deactivateSubscription(deps.Subscriptions))
		r.Method(http.MethodDelete, "/v1/tenants/{tenant_id}/subscriptions/{id}", deleteSubscription(deps.Subscriptions))
		r.Method(http.MethodPost, "/v1/tenants/{tenant_id}/events", postEvent(deps.Dispatcher))
	})

	return r
}
