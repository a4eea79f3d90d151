// Package ratelimit implements the §4.7 rate limiter sitting ahead of
// invoke routes: a per-principal, per-function token bucket that tolerates
// bursts of concurrent requests without double-issuing capacity to the
// same caller.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed right now.
// Implementations must be safe for concurrent use and must not issue two
// independent limiters for the same key under concurrent first access
// (§4.7 "Concurrency").
type Limiter interface {
	// Allow reports whether the request identified by key may proceed. When
	// it returns false, retryAfter is the caller's suggested wait before
	// retrying.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Key combines a principal and a function id into the limiter's bucketing
// key (§4.7 "per-principal, per-function").
func Key(principal, functionID string) string {
	return principal + "\x00" + functionID
}

// Local is a process-local token-bucket limiter, one bucket per key,
// created lazily and exactly once per key under concurrent access.
//
// Grounded on runtime/model's AdaptiveRateLimiter (golang.org/x/time/rate
// as the bucket primitive) and the teacher pack's per-key limiter-map
// shape (marcus-qen-legator/internal/controlplane/auth/ratelimit.go),
// generalized from a fixed-window counter to a token bucket so bursts of
// 50-100 concurrent requests (§4.7) are smoothed rather than hard-cut at a
// window boundary.
type Local struct {
	buckets sync.Map // string -> *rate.Limiter

	rps   rate.Limit
	burst int
}

var _ Limiter = (*Local)(nil)

// NewLocal creates a Local limiter allowing ratePerSecond sustained
// requests per key with burst headroom.
func NewLocal(ratePerSecond float64, burst int) *Local {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if burst <= 0 {
		burst = int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Local{rps: rate.Limit(ratePerSecond), burst: burst}
}

func (l *Local) bucketFor(key string) *rate.Limiter {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(l.rps, l.burst)
	actual, _ := l.buckets.LoadOrStore(key, fresh)
	return actual.(*rate.Limiter)
}

// Allow never blocks; it reports the immediate decision for key.
func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	b := l.bucketFor(key)
	r := b.Reserve()
	if !r.OK() {
		return false, time.Second, nil
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

func formatKey(prefix, key string) string {
	return fmt.Sprintf("%sratelimit:%s", prefix, key)
}
