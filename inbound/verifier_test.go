package inbound_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/frontdeskhq/resilience/inbound"
	"github.com/frontdeskhq/resilience/signature"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProviders() []inbound.ProviderConfig {
	return []inbound.ProviderConfig{
		{Provider: "retell", Scheme: inbound.HexSHA256, Secret: "retell-secret", Header: "X-Retell-Signature"},
		{Provider: "twilio", Scheme: inbound.CanonicalSHA1, Secret: "twilio-token", Header: "X-Twilio-Signature"},
		{Provider: "stripe", Scheme: inbound.TimestampedSHA256, Secret: "stripe-secret", Header: "Stripe-Signature"},
	}
}

func newTestVerifier(t *testing.T, production bool, opts ...inbound.VerifierOption) *inbound.Verifier {
	t.Helper()
	verifier, err := inbound.NewVerifier(testProviders(), production, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return verifier
}

func headerWith(name, value string) http.Header {
	h := http.Header{}
	h.Set(name, value)
	return h
}

func TestNewVerifier(t *testing.T) {
	t.Run("rejects empty provider name", func(t *testing.T) {
		_, err := inbound.NewVerifier([]inbound.ProviderConfig{
			{Provider: "", Scheme: inbound.HexSHA256, Header: "X-Sig"},
		}, false, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("rejects invalid scheme", func(t *testing.T) {
		_, err := inbound.NewVerifier([]inbound.ProviderConfig{
			{Provider: "p", Scheme: 0, Header: "X-Sig"},
		}, false, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("rejects missing signature header name", func(t *testing.T) {
		_, err := inbound.NewVerifier([]inbound.ProviderConfig{
			{Provider: "p", Scheme: inbound.HexSHA256},
		}, false, zerolog.Nop())
		require.Error(t, err)
	})
}

func TestVerify(t *testing.T) {
	t.Run("unknown provider is rejected", func(t *testing.T) {
		verifier := newTestVerifier(t, false)

		err := verifier.Verify("shopify", inbound.Request{Body: []byte(`{}`)})

		require.ErrorIs(t, err, inbound.ErrUnknownProvider)
	})

	t.Run("missing signature header is rejected", func(t *testing.T) {
		verifier := newTestVerifier(t, false)

		err := verifier.Verify("retell", inbound.Request{Body: []byte(`{}`), Header: http.Header{}})

		require.ErrorIs(t, err, inbound.ErrInvalidSignature)
	})

	t.Run("empty secret fails closed", func(t *testing.T) {
		verifier, err := inbound.NewVerifier([]inbound.ProviderConfig{
			{Provider: "retell", Scheme: inbound.HexSHA256, Secret: "", Header: "X-Retell-Signature"},
		}, false, zerolog.Nop())
		require.NoError(t, err)

		body := []byte(`{"event":"call_ended"}`)
		header := headerWith("X-Retell-Signature", signature.SignSHA256Hex("", body))

		err = verifier.Verify("retell", inbound.Request{Body: body, Header: header})

		require.ErrorIs(t, err, inbound.ErrMissingSecret)
	})

	t.Run("hex sha256 scheme", func(t *testing.T) {
		verifier := newTestVerifier(t, false)
		body := []byte(`{"event":"call_ended","call_id":"c-1"}`)

		valid := headerWith("X-Retell-Signature", signature.SignSHA256Hex("retell-secret", body))
		assert.NoError(t, verifier.Verify("retell", inbound.Request{Body: body, Header: valid}))

		wrongSecret := headerWith("X-Retell-Signature", signature.SignSHA256Hex("other-secret", body))
		assert.ErrorIs(t, verifier.Verify("retell", inbound.Request{Body: body, Header: wrongSecret}),
			inbound.ErrInvalidSignature)

		tampered := inbound.Request{Body: []byte(`{"event":"call_ended","call_id":"c-2"}`), Header: valid}
		assert.ErrorIs(t, verifier.Verify("retell", tampered), inbound.ErrInvalidSignature)
	})

	t.Run("canonical sha1 scheme uses URL and params", func(t *testing.T) {
		verifier := newTestVerifier(t, false)
		url := "https://api.frontdesk.example/v1/hooks/twilio"
		params := map[string]string{"From": "+15550100", "Body": "hello", "MessageSid": "SM1"}

		valid := headerWith("X-Twilio-Signature", signature.SignCanonicalSHA1("twilio-token", url, params))
		assert.NoError(t, verifier.Verify("twilio", inbound.Request{Header: valid, URL: url, Params: params}))

		// Same params, different URL.
		assert.ErrorIs(t, verifier.Verify("twilio", inbound.Request{
			Header: valid,
			URL:    "http://api.frontdesk.example/v1/hooks/twilio",
			Params: params,
		}), inbound.ErrInvalidSignature)

		// A dropped parameter breaks the canonical string.
		assert.ErrorIs(t, verifier.Verify("twilio", inbound.Request{
			Header: valid,
			URL:    url,
			Params: map[string]string{"From": "+15550100", "Body": "hello"},
		}), inbound.ErrInvalidSignature)
	})

	t.Run("timestamped scheme enforces tolerance", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		verifier := newTestVerifier(t, false, inbound.WithClock(func() time.Time { return now }))
		body := []byte(`{"type":"payment_intent.succeeded"}`)

		fresh := headerWith("Stripe-Signature", signature.SignTimestamped("stripe-secret", now.Add(-time.Minute), body))
		assert.NoError(t, verifier.Verify("stripe", inbound.Request{Body: body, Header: fresh}))

		stale := headerWith("Stripe-Signature", signature.SignTimestamped("stripe-secret", now.Add(-6*time.Minute), body))
		assert.ErrorIs(t, verifier.Verify("stripe", inbound.Request{Body: body, Header: stale}),
			inbound.ErrInvalidSignature)

		future := headerWith("Stripe-Signature", signature.SignTimestamped("stripe-secret", now.Add(6*time.Minute), body))
		assert.ErrorIs(t, verifier.Verify("stripe", inbound.Request{Body: body, Header: future}),
			inbound.ErrInvalidSignature)
	})

	t.Run("skip flag honored outside production", func(t *testing.T) {
		verifier, err := inbound.NewVerifier([]inbound.ProviderConfig{
			{Provider: "retell", Scheme: inbound.HexSHA256, Secret: "retell-secret",
				Header: "X-Retell-Signature", SkipVerification: true},
		}, false, zerolog.Nop())
		require.NoError(t, err)

		// No signature at all still passes when the flag is set.
		assert.NoError(t, verifier.Verify("retell", inbound.Request{Body: []byte(`{}`), Header: http.Header{}}))
	})

	t.Run("skip flag refused in production", func(t *testing.T) {
		verifier, err := inbound.NewVerifier([]inbound.ProviderConfig{
			{Provider: "retell", Scheme: inbound.HexSHA256, Secret: "retell-secret",
				Header: "X-Retell-Signature", SkipVerification: true},
		}, true, zerolog.Nop())
		require.NoError(t, err)

		assert.Error(t, verifier.Verify("retell", inbound.Request{Body: []byte(`{}`), Header: http.Header{}}))

		body := []byte(`{"event":"call_ended"}`)
		valid := headerWith("X-Retell-Signature", signature.SignSHA256Hex("retell-secret", body))
		assert.NoError(t, verifier.Verify("retell", inbound.Request{Body: body, Header: valid}))
	})
}

func TestProviders(t *testing.T) {
	verifier := newTestVerifier(t, false)

	assert.ElementsMatch(t, []string{"retell", "twilio", "stripe"}, verifier.Providers())
}
