package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/runtime/retry"
)

func retryTestConfig() retry.Config {
	return retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	client := &fakeClient{}
	wrapped := WithRetry(client, retryTestConfig())

	resp, err := wrapped.Complete(context.Background(), &Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 1, client.completeCalls)
}

func TestWithRetryRetriesOnErrRateLimited(t *testing.T) {
	client := &fakeClient{completeErr: ErrRateLimited}
	wrapped := WithRetry(client, retryTestConfig())

	_, err := wrapped.Complete(context.Background(), &Request{})
	require.Error(t, err)
	require.Equal(t, 3, client.completeCalls)
}

func TestWithRetryDoesNotRetryNonRetryableError(t *testing.T) {
	client := &fakeClient{completeErr: errors.New("invalid request")}
	wrapped := WithRetry(client, retryTestConfig())

	_, err := wrapped.Complete(context.Background(), &Request{})
	require.Error(t, err)
	require.Equal(t, 1, client.completeCalls)
}

func TestWithRetryHonorsCustomRetryableOverride(t *testing.T) {
	client := &fakeClient{completeErr: errors.New("overloaded")}
	cfg := retryTestConfig()
	cfg.Retryable = func(error) bool { return true }
	wrapped := WithRetry(client, cfg)

	_, err := wrapped.Complete(context.Background(), &Request{})
	require.Error(t, err)
	require.Equal(t, 3, client.completeCalls)
}

func TestWithRetryNilClientReturnsNil(t *testing.T) {
	require.Nil(t, WithRetry(nil, retryTestConfig()))
}
