package chi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/frontdeskhq/resilience/identity"
	"github.com/frontdeskhq/resilience/ratelimit"
)

/* Rate limiting middleware
 * Every entry point resolves the client identity, asks the governor, and
 * turns a denial into an early 429 with retry guidance. The X-RateLimit-*
 * headers are set on every response so well-behaved clients can pace
 * themselves before hitting the limit.
 */

// tooManyRequestsResponse is the 429 body
type tooManyRequestsResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// defaultRetryAfter is used when the governor cannot say when the window
// resets.
const defaultRetryAfter = 60

// rateLimit guards a route subtree with the given operation class.
func rateLimit(governor *ratelimit.Governor, class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := identity.Resolve(r.Header)
			decision := governor.Check(r.Context(), class, clientID)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := decision.RetryAfter
			if retryAfter <= 0 {
				retryAfter = defaultRetryAfter
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(tooManyRequestsResponse{
				Error:      "Too many requests",
				RetryAfter: retryAfter,
			})
		})
	}
}
