// Package engine abstracts the durable-workflow primitives the Agentic and
// Cascade executors run over, so the same loop/tier logic can run against a
// fast in-memory engine for tests and a Temporal-backed engine in
// production, without touching executor code.
package engine

import (
	"context"
	"time"
)

// WorkflowContext exposes the subset of workflow-engine operations the
// Agentic and Cascade executors need: deterministic time, cancellable
// sub-scopes, and timers. Implementations must keep Now() and NewTimer()
// replay-safe in engines that require it (Temporal); the in-memory engine
// has no such constraint.
type WorkflowContext interface {
	// Context returns the Go context carrying cancellation for this workflow
	// scope.
	Context() context.Context

	// Now returns the current time as observed by the workflow engine.
	Now() time.Time

	// NewTimer starts a timer that fires after d, returned as a Future so
	// callers can race it against other futures (e.g. tool-call completion).
	NewTimer(ctx context.Context, d time.Duration) (Future[time.Time], error)

	// WithCancel returns a child WorkflowContext and a function that cancels
	// it, used to bound a sub-operation (e.g. one cascade tier attempt)
	// without cancelling the parent scope.
	WithCancel() (WorkflowContext, context.CancelFunc)
}

// Future represents a pending result of type T. Get blocks until the result
// is available; IsReady reports without blocking whether it is available.
type Future[T any] interface {
	Get(ctx context.Context) (T, error)
	IsReady() bool
}

// RetryPolicy mirrors the teacher's retry configuration shared by
// activities. No code in this module reads RetryPolicy or ActivityOptions:
// the in-memory engine has no retry concept of its own, and the cascade and
// agentic executors bound their calls with timers and contexts instead.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
}

// ActivityOptions bounds one activity invocation (a single tier attempt, a
// single tool call) dispatched through a WorkflowContext-backed engine.
type ActivityOptions struct {
	Timeout     time.Duration
	RetryPolicy RetryPolicy
}
