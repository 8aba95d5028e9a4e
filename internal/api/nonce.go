package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// NonceHeader carries the request nonce.
const NonceHeader = "X-HSEC-Nonce"

// NonceLifetime is the width of one nonce bucket. A nonce is accepted in its
// own bucket and the next one.
const NonceLifetime = 12 * time.Hour

// Nonces issues and verifies time-bucketed request nonces.
type Nonces struct {
	key []byte
	now func() time.Time
}

// NewNonces creates a Nonces keyed by key. A nil clock uses time.Now.
func NewNonces(key []byte, now func() time.Time) *Nonces {
	if now == nil {
		now = time.Now
	}
	return &Nonces{key: key, now: now}
}

func (n *Nonces) sign(bucket int64) string {
	mac := hmac.New(sha256.New, n.key)
	mac.Write([]byte("hsec-admin:" + strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:20]
}

func (n *Nonces) bucket() int64 {
	return n.now().Unix() / int64(NonceLifetime/time.Second)
}

// Issue returns the nonce for the current bucket.
func (n *Nonces) Issue() string {
	return n.sign(n.bucket())
}

// Valid reports whether nonce belongs to the current or previous bucket.
func (n *Nonces) Valid(nonce string) bool {
	if nonce == "" {
		return false
	}
	b := n.bucket()
	for _, candidate := range []int64{b, b - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(candidate))) {
			return true
		}
	}
	return false
}

// Require returns middleware rejecting requests without a valid nonce.
func (n *Nonces) Require() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !n.Valid(r.Header.Get(NonceHeader)) {
				WriteError(w, http.StatusForbidden,
					newError(CategoryUnauthorized, "Security check failed", CorrelationID(r.Context())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
