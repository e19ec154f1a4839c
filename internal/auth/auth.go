// Package auth enforces the shared master key on inbound requests. The key is
// presented as a Bearer token or an x-api-key header; verification is
// constant-time against the plaintext key, or a bcrypt compare when only a
// hash is configured.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks inbound credentials against the configured master key.
// A zero Verifier accepts everything (no key configured).
type Verifier struct {
	mu   sync.RWMutex
	key  string
	hash string
}

// NewVerifier builds a Verifier from the plaintext master key and/or its
// bcrypt hash. When both are set the hash wins.
func NewVerifier(key, hash string) *Verifier {
	return &Verifier{key: key, hash: hash}
}

// Rotate swaps the credential in place, for config hot reload.
func (v *Verifier) Rotate(key, hash string) {
	v.mu.Lock()
	v.key, v.hash = key, hash
	v.mu.Unlock()
}

// Enabled reports whether any credential is configured.
func (v *Verifier) Enabled() bool {
	if v == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key != "" || v.hash != ""
}

// Verify reports whether the presented token matches the master key.
func (v *Verifier) Verify(token string) bool {
	if !v.Enabled() {
		return true
	}
	if token == "" {
		return false
	}
	v.mu.RLock()
	key, hash := v.key, v.hash
	v.mu.RUnlock()
	if hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1
}

// TokenFromRequest extracts the presented credential: a Bearer token from
// Authorization, or the x-api-key header.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return h
	}
	return r.Header.Get("x-api-key")
}

// Middleware rejects requests that do not carry the master key. When no key
// is configured the middleware passes everything through.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			if !v.Verify(TokenFromRequest(r)) {
				clientIP := r.Header.Get("X-Real-IP")
				if clientIP == "" {
					clientIP = r.RemoteAddr
				}
				slog.Warn("master key auth: rejected", slog.String("ip", clientIP), slog.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
