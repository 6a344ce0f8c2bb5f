package webhook

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

/* Subscription represents a tenant's webhook endpoint registration
 * Uses value semantics as it represents data, not behavior
 */
type Subscription struct {
	ID        string
	TenantID  string
	URL       string
	Events    []EventType
	Secret    string
	IsActive  bool
	CreatedAt time.Time
}

// Subscribed reports whether the subscription listens for the event type.
func (s Subscription) Subscribed(eventType EventType) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Validate checks the subscription fields, including the SSRF check on the
// endpoint URL. The URL check runs at creation time only; it is not
// re-validated at delivery time (a DNS-rebound endpoint would bypass it).
func (s Subscription) Validate() error {
	if s.TenantID == "" {
		return fmt.Errorf("tenant_id cannot be empty")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("subscription must list at least one event type")
	}
	for _, eventType := range s.Events {
		if err := eventType.Validate(); err != nil {
			return fmt.Errorf("validating event type: %w", err)
		}
	}
	if err := ValidateEndpointURL(s.URL); err != nil {
		return fmt.Errorf("validating endpoint URL: %w", err)
	}
	return nil
}

// ValidateEndpointURL rejects URLs whose host resolves to a private,
// loopback, or link-local address, so subscriptions cannot point deliveries
// at internal infrastructure.
func ValidateEndpointURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolving host %s: %w", host, err)
	}

	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return fmt.Errorf("host %s resolves to disallowed address %s", host, ip)
		}
	}
	return nil
}

func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
