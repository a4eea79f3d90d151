package ratelimit

import (
	"fmt"
	"net/http"
)

// KeyFunc extracts the rate-limit key (principal, function id) from a
// request. Handlers compose this from whatever principal-extraction the
// auth gate already performed (see runtime/auth).
type KeyFunc func(r *http.Request) string

// Middleware returns an http.Handler middleware that rejects requests over
// limiter's allowance for keyFn(r) with 429 and a Retry-After header
// (§4.7 "Exceeded limit yields RateLimited with Retry-After header ... and
// an error message matching /rate.*limit|too.*many.*requests|throttl/i").
func Middleware(limiter Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				http.Error(w, `{"error":"rate limiter unavailable"}`, http.StatusInternalServerError)
				return
			}
			if !allowed {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":"rate limit exceeded, too many requests"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
