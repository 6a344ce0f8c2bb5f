package signature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Run("produces 256-bit hex secrets", func(t *testing.T) {
		secret, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, secret, SecretBytes*2)
	})

	t.Run("generates different secrets", func(t *testing.T) {
		first, err := GenerateSecret()
		require.NoError(t, err)
		second, err := GenerateSecret()
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
}

func TestSHA256Hex(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"event":"call.completed"}`)

	t.Run("signature verifies against its own payload and secret", func(t *testing.T) {
		sig := SignSHA256Hex(secret, body)
		assert.True(t, VerifySHA256Hex(secret, body, sig))
	})

	t.Run("fails against a mutated payload", func(t *testing.T) {
		sig := SignSHA256Hex(secret, body)

		mutated := append([]byte(nil), body...)
		mutated[0] ^= 0x01
		assert.False(t, VerifySHA256Hex(secret, mutated, sig))
	})

	t.Run("fails against a mutated secret", func(t *testing.T) {
		sig := SignSHA256Hex(secret, body)
		assert.False(t, VerifySHA256Hex("test-secreT", body, sig))
	})

	t.Run("fails on empty signature or secret", func(t *testing.T) {
		assert.False(t, VerifySHA256Hex(secret, body, ""))
		assert.False(t, VerifySHA256Hex("", body, SignSHA256Hex(secret, body)))
	})
}

func TestCanonicalSHA1(t *testing.T) {
	token := "auth-token"
	url := "https://example.com/v1/hooks/twilio"
	params := map[string]string{
		"CallSid": "CA123",
		"From":    "+15550100",
		"To":      "+15550199",
	}

	t.Run("signature verifies", func(t *testing.T) {
		sig := SignCanonicalSHA1(token, url, params)
		assert.True(t, VerifyCanonicalSHA1(token, url, params, sig))
	})

	t.Run("parameter order does not matter", func(t *testing.T) {
		// Maps are unordered in Go; prove order-independence by signing a
		// rebuilt map populated in a different insertion order.
		reordered := map[string]string{
			"To":      "+15550199",
			"From":    "+15550100",
			"CallSid": "CA123",
		}
		assert.Equal(t, SignCanonicalSHA1(token, url, params), SignCanonicalSHA1(token, url, reordered))
	})

	t.Run("changing the URL changes the signature", func(t *testing.T) {
		sig := SignCanonicalSHA1(token, url, params)
		assert.NotEqual(t, sig, SignCanonicalSHA1(token, "https://example.com/other", params))
		assert.False(t, VerifyCanonicalSHA1(token, "https://example.com/other", params, sig))
	})

	t.Run("dropping a parameter breaks verification", func(t *testing.T) {
		sig := SignCanonicalSHA1(token, url, params)
		assert.False(t, VerifyCanonicalSHA1(token, url, map[string]string{
			"CallSid": "CA123",
			"From":    "+15550100",
		}, sig))
	})
}

func TestTimestamped(t *testing.T) {
	secret := "whsec-test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)

	t.Run("fresh signature verifies", func(t *testing.T) {
		header := SignTimestamped(secret, now, body)
		assert.True(t, VerifyTimestamped(secret, header, body, DefaultTolerance, now))
	})

	t.Run("signature within tolerance verifies", func(t *testing.T) {
		header := SignTimestamped(secret, now.Add(-4*time.Minute), body)
		assert.True(t, VerifyTimestamped(secret, header, body, DefaultTolerance, now))
	})

	t.Run("correct HMAC outside the tolerance window is rejected", func(t *testing.T) {
		header := SignTimestamped(secret, now.Add(-6*time.Minute), body)
		assert.False(t, VerifyTimestamped(secret, header, body, DefaultTolerance, now))
	})

	t.Run("future timestamps outside tolerance are rejected", func(t *testing.T) {
		header := SignTimestamped(secret, now.Add(6*time.Minute), body)
		assert.False(t, VerifyTimestamped(secret, header, body, DefaultTolerance, now))
	})

	t.Run("missing t is rejected", func(t *testing.T) {
		assert.False(t, VerifyTimestamped(secret, "v1=abcdef", body, DefaultTolerance, now))
	})

	t.Run("missing v1 is rejected", func(t *testing.T) {
		assert.False(t, VerifyTimestamped(secret, "t=1700000000", body, DefaultTolerance, now))
	})

	t.Run("malformed timestamp is rejected", func(t *testing.T) {
		assert.False(t, VerifyTimestamped(secret, "t=not-a-number,v1=abcdef", body, DefaultTolerance, now))
	})

	t.Run("garbage header is rejected", func(t *testing.T) {
		assert.False(t, VerifyTimestamped(secret, "!!!", body, DefaultTolerance, now))
		assert.False(t, VerifyTimestamped(secret, "", body, DefaultTolerance, now))
	})

	t.Run("mutated body is rejected", func(t *testing.T) {
		header := SignTimestamped(secret, now, body)
		assert.False(t, VerifyTimestamped(secret, header, []byte(`{"id":"evt_2"}`), DefaultTolerance, now))
	})

	t.Run("extra header fields are ignored", func(t *testing.T) {
		header := SignTimestamped(secret, now, body) + ",v0=legacy"
		assert.True(t, VerifyTimestamped(secret, header, body, DefaultTolerance, now))
	})
}
