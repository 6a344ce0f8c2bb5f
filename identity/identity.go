package identity

import (
	"net/http"
	"strings"
)

/* Client identity resolution for rate limiting.
 * Headers are checked in trust order: the closer a header is injected to the
 * edge, the harder it is for a client to forge. The forwarded-for chain is
 * attacker-controllable when no proxy strips it, so it comes last.
 */

const (
	// Unknown is returned when no usable client address header is present.
	Unknown = "unknown"

	headerCDNClientIP = "CF-Connecting-IP"
	headerRealIP      = "X-Real-IP"
	headerForwarded   = "X-Forwarded-For"
)

// Resolve derives a stable rate-limit identity from request headers.
// It is total: it never fails, returning Unknown as the last resort.
// Whitespace-only header values are treated as absent.
func Resolve(headers http.Header) string {
	if ip := strings.TrimSpace(headers.Get(headerCDNClientIP)); ip != "" {
		return ip
	}

	if ip := strings.TrimSpace(headers.Get(headerRealIP)); ip != "" {
		return ip
	}

	// First non-empty entry of the forwarded-for chain.
	for _, part := range strings.Split(headers.Get(headerForwarded), ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			return ip
		}
	}

	return Unknown
}
