package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalAllowsWithinBurstThenDenies(t *testing.T) {
	l := NewLocal(1, 2)
	ctx := context.Background()
	ok1, _, err := l.Allow(ctx, "p/f")
	require.NoError(t, err)
	require.True(t, ok1)
	ok2, _, err := l.Allow(ctx, "p/f")
	require.NoError(t, err)
	require.True(t, ok2)
	ok3, retryAfter, err := l.Allow(ctx, "p/f")
	require.NoError(t, err)
	require.False(t, ok3)
	require.Greater(t, retryAfter.Nanoseconds(), int64(0))
}

func TestLocalKeysAreIndependent(t *testing.T) {
	l := NewLocal(1, 1)
	ctx := context.Background()
	ok1, _, err := l.Allow(ctx, "p1/f")
	require.NoError(t, err)
	require.True(t, ok1)
	ok2, _, err := l.Allow(ctx, "p2/f")
	require.NoError(t, err)
	require.True(t, ok2, "a different principal/function key must have its own bucket")
}

func TestLocalConcurrentFirstAccessSharesOneBucket(t *testing.T) {
	l := NewLocal(1000, 1)
	var wg sync.WaitGroup
	allowed := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _, _ := l.Allow(context.Background(), "same-key")
			allowed[i] = ok
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range allowed {
		if ok {
			count++
		}
	}
	require.LessOrEqual(t, count, 2, "burst of 1 shared across one bucket must not let every concurrent caller through")
}

func TestMiddlewareReturns429WithRetryAfterWhenDenied(t *testing.T) {
	l := NewLocal(1, 1)
	mw := Middleware(l, func(r *http.Request) string { return "p/f" })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodPost, "/functions/f/invoke", nil)
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
	require.NotEmpty(t, rec2.Header().Get("Retry-After"))
	require.Regexp(t, "(?i)rate.*limit|too.*many.*requests|throttl", rec2.Body.String())
}
