// Retry middleware at the model.Client boundary: wraps Complete in
// runtime/retry's exponential-backoff loop, extending its generic
// network/HTTP classification with provider rate-limit signals (ErrRateLimited)
// so a transient 429 from Anthropic/OpenAI/Bedrock gets retried the same as a
// timeout, without runtime/retry needing to import this package.
package model

import (
	"context"
	"errors"

	"github.com/tiercade/tiercade/runtime/retry"
)

type retryingClient struct {
	next Client
	cfg  retry.Config
}

// WithRetry wraps next so each Complete call is retried per cfg, treating
// ErrRateLimited as retryable in addition to retry.IsRetryable's generic
// checks. A nil cfg.Retryable is replaced; any other classifier passed in cfg
// is honored as-is.
func WithRetry(next Client, cfg retry.Config) Client {
	if next == nil {
		return nil
	}
	if cfg.Retryable == nil {
		cfg.Retryable = isRetryableModelError
	}
	return &retryingClient{next: next, cfg: cfg}
}

func isRetryableModelError(err error) bool {
	return retry.IsRetryable(err) || errors.Is(err, ErrRateLimited)
}

func (c *retryingClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, c.cfg, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.next.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
