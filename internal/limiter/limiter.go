// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Defaults used by the login route.
const (
	DefaultWindow = 15 * time.Minute
	DefaultMax    = 100
)

// Limiter counts login attempts per caller within a window.
type Limiter interface {
	// Allow records an attempt for key and reports whether it may proceed.
	// When refused, retryAfter tells when the next attempt will be accepted.
	Allow(ctx context.Context, key []byte) (allowed bool, retryAfter time.Duration, err error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
