package chi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frontdeskhq/resilience/webhook"
)

/* HTTP layer DTOs for subscription management
 * Separate from domain entities to avoid leaking internal structure
 */

// subscriptionRequest represents the incoming subscription payload
type subscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// subscriptionResponse represents a subscription in the API.
// Secret is present only in the creation response; it is never re-exposed.
type subscriptionResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"secret,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// eventRequest represents an internally raised domain event
type eventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func toSubscriptionResponse(sub webhook.Subscription) subscriptionResponse {
	events := make([]string, len(sub.Events))
	for i, e := range sub.Events {
		events[i] = e.String()
	}
	return subscriptionResponse{
		ID:        sub.ID,
		TenantID:  sub.TenantID,
		URL:       sub.URL,
		Events:    events,
		Secret:    sub.Secret,
		IsActive:  sub.IsActive,
		CreatedAt: sub.CreatedAt,
	}
}

// postSubscription handles POST /v1/tenants/{tenant_id}/subscriptions
func postSubscription(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenant_id")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}

		var req subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		events := make([]webhook.EventType, len(req.Events))
		for i, e := range req.Events {
			events[i] = webhook.EventType(e)
		}

		sub, err := service.Create(r.Context(), tenantID, req.URL, events)
		if err != nil {
			if strings.Contains(err.Error(), "validating") {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toSubscriptionResponse(sub))
	})
}

// getSubscriptions handles GET /v1/tenants/{tenant_id}/subscriptions
func getSubscriptions(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenant_id")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}

		subs, err := service.ListByTenant(r.Context(), tenantID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]subscriptionResponse, 0, len(subs))
		for _, sub := range subs {
			responses = append(responses, toSubscriptionResponse(sub))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(responses)
	})
}

// deactivateSubscription handles POST /v1/tenants/{tenant_id}/subscriptions/{id}/deactivate
func deactivateSubscription(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := service.Deactivate(r.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// deleteSubscription handles DELETE /v1/tenants/{tenant_id}/subscriptions/{id}
func deleteSubscription(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := service.Delete(r.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// postEvent handles POST /v1/tenants/{tenant_id}/events
// The dashboard's domain flows call this to fan an event out to the
// tenant's subscribers. Delivery failures are recorded for retry and do not
// fail this request.
func postEvent(dispatcher *webhook.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenant_id")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		eventType := webhook.EventType(req.Type)
		if err := eventType.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := dispatcher.Dispatch(r.Context(), tenantID, eventType, req.Payload); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(inboundAckResponse{Status: "accepted"})
	})
}
