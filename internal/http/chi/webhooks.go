package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/frontdeskhq/resilience/inbound"
	"github.com/frontdeskhq/resilience/metrics"
	"github.com/frontdeskhq/resilience/retry"
)

/* Inbound third-party webhook handling.
 * Order matters: rate limiting has already run (middleware), then the
 * signature is verified before a single byte of the body is parsed. Only a
 * verified payload reaches the processor; a processing failure stores the
 * raw payload for replay and still returns 202 — our own retry loop beats
 * asking the provider to retry.
 */

// inboundAckResponse acknowledges an accepted inbound webhook
type inboundAckResponse struct {
	Status string `json:"status"`
}

// errorResponse is the generic error body
type errorResponse struct {
	Error string `json:"error"`
}

// postInboundWebhook handles POST /v1/hooks/{provider}
func postInboundWebhook(verifier *inbound.Verifier, processor inbound.Processor, failures retry.Recorder, recorder *metrics.Recorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		if provider == "" {
			writeError(w, http.StatusBadRequest, "provider is required")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		defer r.Body.Close()

		err = verifier.Verify(provider, inbound.Request{
			Body:   body,
			Header: r.Header,
			URL:    requestURL(r),
			Params: formParams(r, body),
		})
		if recorder != nil {
			recorder.RecordInboundVerification(r.Context(), provider, err == nil)
		}
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, inbound.ErrUnknownProvider) {
				status = http.StatusNotFound
			}
			writeError(w, status, "webhook verification failed")
			return
		}

		if err := processor.Process(r.Context(), provider, body); err != nil {
			failure := retry.NewInboundFailure(provider, "", body, err)
			if recordErr := failures.Record(r.Context(), failure); recordErr != nil {
				writeError(w, http.StatusInternalServerError, "failed to store webhook for retry")
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(inboundAckResponse{Status: "accepted"})
	})
}

// requestURL reconstructs the full URL the provider signed.
func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// formParams extracts form-encoded parameters for canonical-scheme
// verification. The body was already consumed, so parse our saved copy.
func formParams(r *http.Request, body []byte) map[string]string {
	if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		return nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil
	}
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return params
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}
