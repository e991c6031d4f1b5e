// Package webhook verifies svix-style webhook signatures: HMAC-SHA256
// over "{id}.{timestamp}.{body}" with a base64 secret, carried in the
// svix-id / svix-timestamp / svix-signature headers.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Tolerance is how far a webhook timestamp may drift from server time
// before the delivery is rejected as a possible replay.
const Tolerance = 5 * time.Minute

var (
	ErrMissingHeaders   = errors.New("missing signature headers")
	ErrInvalidTimestamp = errors.New("invalid or expired timestamp")
	ErrNoMatchingSig    = errors.New("no matching signature")
)

// Verifier checks webhook deliveries against a shared secret.
type Verifier struct {
	key []byte
}

// NewVerifier parses a webhook secret. The conventional "whsec_" prefix is
// optional; the remainder is base64.
func NewVerifier(secret string) (*Verifier, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("empty webhook secret")
	}
	return &Verifier{key: key}, nil
}

// Verify checks the delivery headers and body. The signature header may
// carry several space-separated "v1,<base64>" candidates (key rotation);
// any single match passes.
func (v *Verifier) Verify(headers http.Header, body []byte) error {
	return v.verifyAt(headers, body, time.Now())
}

func (v *Verifier) verifyAt(headers http.Header, body []byte, now time.Time) error {
	msgID := headers.Get("svix-id")
	timestamp := headers.Get("svix-timestamp")
	signatures := headers.Get("svix-signature")
	if msgID == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift > Tolerance || drift < -Tolerance {
		return ErrInvalidTimestamp
	}

	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(signatures) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrNoMatchingSig
}

// Sign produces the "v1,<base64>" signature for a delivery. Used by tests
// and by outbound webhook tooling.
func (v *Verifier) Sign(msgID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
