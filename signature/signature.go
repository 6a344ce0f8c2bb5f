package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

/* HMAC signature codec for the three external webhook schemes.
 * The schemes share no canonicalization rules, only the constant-time
 * comparison at the end, so each is a standalone pair of functions rather
 * than variants of a common base.
 *
 * Every verification failure returns false; parse errors and malformed
 * input are never surfaced as anything a caller could mistake for
 * "verified".
 */

const (
	// SecretBytes is the size of generated signing secrets (256 bits).
	SecretBytes = 32

	// DefaultTolerance bounds clock skew and the replay window for
	// timestamped signatures.
	DefaultTolerance = 5 * time.Minute
)

// GenerateSecret creates a cryptographically secure 256-bit signing secret,
// hex-encoded. Generated once per subscription and never re-exposed.
func GenerateSecret() (string, error) {
	bytes := make([]byte, SecretBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

/* Scheme A: hex(HMAC-SHA256(secret, body)).
 * Simple provider webhooks and our own outbound deliveries. No timestamp;
 * replay protection is the caller's concern.
 */

// SignSHA256Hex computes the scheme A signature over body.
func SignSHA256Hex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySHA256Hex verifies a scheme A signature using constant-time
// comparison.
func VerifySHA256Hex(secret string, body []byte, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	expected := SignSHA256Hex(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

/* Scheme B: base64(HMAC-SHA1(authToken, url + sorted(key+value...))).
 * Parameters are sorted lexicographically by key, each key concatenated
 * directly with its value, all pairs concatenated and prefixed with the
 * full request URL. Sensitive to the exact URL and parameter set: a proxy
 * rewriting either breaks verification.
 */

// SignCanonicalSHA1 computes the scheme B signature for a URL and its
// form parameters.
func SignCanonicalSHA1(authToken, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var input strings.Builder
	input.WriteString(url)
	for _, key := range keys {
		input.WriteString(key)
		input.WriteString(params[key])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(input.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyCanonicalSHA1 verifies a scheme B signature using constant-time
// comparison.
func VerifyCanonicalSHA1(authToken, url string, params map[string]string, sig string) bool {
	if authToken == "" || sig == "" {
		return false
	}
	expected := SignCanonicalSHA1(authToken, url, params)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

/* Scheme C: timestamped HMAC with replay tolerance.
 * Header is a comma-separated key=value list carrying at least t (unix
 * seconds) and v1 (hex signature). The signed content is "{t}.{body}".
 */

// SignTimestamped computes a scheme C header value for the given timestamp.
func SignTimestamped(secret string, t time.Time, body []byte) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// VerifyTimestamped verifies a scheme C header against the raw body.
// A timestamp further than tolerance from now is rejected even when the
// HMAC itself is correct; this also rejects clock-skewed legitimate
// requests, which is accepted.
func VerifyTimestamped(secret, header string, body []byte, tolerance time.Duration, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var timestamp, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			sig = value
		}
	}
	if timestamp == "" || sig == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}
