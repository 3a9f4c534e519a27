// Package auth protects the Supervisor's operator-facing HTTP surface
// (/status) with an HMAC-signed shared secret. It has nothing to do with
// the promotion protocol's peer messages, which travel over the pub/sub
// bus and are not authenticated by this package.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// HeaderTimestamp carries the Unix time a request was signed at.
	HeaderTimestamp = "X-Pgsentinel-Timestamp"
	// HeaderSignature carries the request's HMAC-SHA256 signature.
	HeaderSignature = "X-Pgsentinel-Signature"
	// MaxClockSkew bounds how far a request's timestamp may drift from
	// the validator's clock before it is rejected.
	MaxClockSkew = 30 * time.Second
)

// Authenticator validates status requests against a shared secret. A zero
// value secret turns validation into a no-op, letting an operator run
// without a status token during local testing.
type Authenticator struct {
	sharedSecret string
}

// New builds an Authenticator over sharedSecret.
func New(sharedSecret string) *Authenticator {
	return &Authenticator{sharedSecret: sharedSecret}
}

// Middleware wraps next so it only runs once ValidateRequest passes.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.ValidateRequest(r); err != nil {
			http.Error(w, fmt.Sprintf("authentication failed: %v", err), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// ValidateRequest checks r's timestamp and signature headers against the
// shared secret.
func (a *Authenticator) ValidateRequest(r *http.Request) error {
	if a.sharedSecret == "" {
		return nil
	}

	timestampStr := r.Header.Get(HeaderTimestamp)
	if timestampStr == "" {
		return fmt.Errorf("missing %s header", HeaderTimestamp)
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	skew := time.Now().Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > MaxClockSkew {
		return fmt.Errorf("timestamp outside allowed window (skew: %ds)", skew)
	}

	want := a.sign(r.Method, r.URL.Path, timestamp)
	got := r.Header.Get(HeaderSignature)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// sign computes the HMAC-SHA256 signature a caller must present for the
// given method, path, and timestamp.
func (a *Authenticator) sign(method, path string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(a.sharedSecret))
	fmt.Fprintf(mac, "%s:%s:%d", method, path, timestamp)
	return hex.EncodeToString(mac.Sum(nil))
}
