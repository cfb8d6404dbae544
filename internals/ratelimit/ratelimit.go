// Package ratelimit provides the per-subscriber token bucket backing
// publish-path rate limiting.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the default sustained admission rate, requests/sec.
	DefaultRate = 1000
	// DefaultBurst is the default burst capacity.
	DefaultBurst = 500
)

// Limiter wraps golang.org/x/time/rate with the all-or-nothing admission
// semantics the delivery engine needs: a request either consumes exactly one
// token or consumes none.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a token bucket of rate r requests/sec and burst capacity b.
// Non-positive values fall back to the package defaults.
func New(r float64, b int) *Limiter {
	if r <= 0 {
		r = DefaultRate
	}
	if b <= 0 {
		b = DefaultBurst
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(r), b)}
}

// Check reports whether a request arriving at now is admitted. When denied,
// retryAfter is the duration until a token would next be available; denial
// never consumes a token.
func (l *Limiter) Check(now time.Time) (allowed bool, retryAfter time.Duration) {
	if l.rl.AllowN(now, 1) {
		return true, 0
	}
	res := l.rl.ReserveN(now, 1)
	if res.OK() {
		retryAfter = res.DelayFrom(now)
		res.CancelAt(now)
	}
	return false, retryAfter
}
