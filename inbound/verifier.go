package inbound

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/frontdeskhq/resilience/signature"
	"github.com/rs/zerolog"
)

/* Inbound webhook verification.
 * Every third-party webhook is verified against its provider's signature
 * scheme before any byte of the payload is trusted. Verification fails
 * closed: an unknown provider, a missing secret, or any parse problem is a
 * rejection, never a pass.
 */

// Scheme selects the signature algorithm a provider uses.
type Scheme int

const (
	// HexSHA256 is hex(HMAC-SHA256(secret, body)).
	HexSHA256 Scheme = iota + 1
	// CanonicalSHA1 is base64(HMAC-SHA1(token, url + sorted params)).
	CanonicalSHA1
	// TimestampedSHA256 is the t=...,v1=... header with replay tolerance.
	TimestampedSHA256
)

// String returns the string representation of the scheme
func (s Scheme) String() string {
	switch s {
	case HexSHA256:
		return "hex_sha256"
	case CanonicalSHA1:
		return "canonical_sha1"
	case TimestampedSHA256:
		return "timestamped_sha256"
	default:
		return "unknown"
	}
}

// Validate checks if the scheme is valid
func (s Scheme) Validate() error {
	if s < HexSHA256 || s > TimestampedSHA256 {
		return fmt.Errorf("invalid signature scheme: %d", s)
	}
	return nil
}

var (
	ErrUnknownProvider  = errors.New("unknown webhook provider")
	ErrMissingSecret    = errors.New("no signing secret configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ProviderConfig describes one third-party webhook source.
type ProviderConfig struct {
	Provider string
	Scheme   Scheme
	Secret   string
	// Header carrying the signature, e.g. Stripe-Signature.
	Header string
	// SkipVerification disables the check for local testing.
	// Refused when the deployment environment is production.
	SkipVerification bool
}

// Request carries the raw inputs verification needs: the body before any
// JSON parsing, the signature headers, and for canonical-URL schemes the
// full request URL and form parameters.
type Request struct {
	Body   []byte
	Header http.Header
	URL    string
	Params map[string]string
}

type Verifier struct {
	providers  map[string]ProviderConfig
	production bool
	tolerance  time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance overrides the timestamped-scheme replay tolerance.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.tolerance = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier for the given providers. production guards
// the SkipVerification escape hatch.
func NewVerifier(providers []ProviderConfig, production bool, logger zerolog.Logger, opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{
		providers:  make(map[string]ProviderConfig, len(providers)),
		production: production,
		tolerance:  signature.DefaultTolerance,
		logger:     logger,
		now:        time.Now,
	}
	for _, cfg := range providers {
		if cfg.Provider == "" {
			return nil, fmt.Errorf("provider name cannot be empty")
		}
		if err := cfg.Scheme.Validate(); err != nil {
			return nil, fmt.Errorf("validating provider %s: %w", cfg.Provider, err)
		}
		if cfg.Header == "" {
			return nil, fmt.Errorf("provider %s has no signature header", cfg.Provider)
		}
		v.providers[cfg.Provider] = cfg
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the request signature for the named provider.
// A nil return means the payload may be trusted.
func (v *Verifier) Verify(provider string, req Request) error {
	cfg, ok := v.providers[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	if cfg.SkipVerification {
		if v.production {
			v.logger.Error().Str("provider", provider).
				Msg("signature bypass flag set in production, enforcing verification")
		} else {
			v.logger.Warn().Str("provider", provider).
				Msg("signature verification skipped")
			return nil
		}
	}

	if cfg.Secret == "" {
		// Fail closed: unverifiable is not verified.
		return fmt.Errorf("%w: provider %s", ErrMissingSecret, provider)
	}

	sig := req.Header.Get(cfg.Header)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, cfg.Header)
	}

	var valid bool
	switch cfg.Scheme {
	case HexSHA256:
		valid = signature.VerifySHA256Hex(cfg.Secret, req.Body, sig)
	case CanonicalSHA1:
		valid = signature.VerifyCanonicalSHA1(cfg.Secret, req.URL, req.Params, sig)
	case TimestampedSHA256:
		valid = signature.VerifyTimestamped(cfg.Secret, sig, req.Body, v.tolerance, v.now())
	}
	if !valid {
		return fmt.Errorf("%w: provider %s", ErrInvalidSignature, provider)
	}
	return nil
}

// Providers returns the configured provider names.
func (v *Verifier) Providers() []string {
	names := make([]string, 0, len(v.providers))
	for name := range v.providers {
		names = append(names, name)
	}
	return names
}
