package engine

import (
	"context"
	"time"

	"go.temporal.io/sdk/workflow"
)

// temporalContext adapts a Temporal workflow.Context to WorkflowContext. Now
// and NewTimer delegate directly to workflow.Now/workflow.NewTimer so replay
// determinism is inherited from the Temporal SDK rather than reimplemented.
type temporalContext struct {
	ctx workflow.Context
}

// NewTemporalContext wraps a Temporal workflow.Context as a WorkflowContext.
func NewTemporalContext(ctx workflow.Context) WorkflowContext {
	return &temporalContext{ctx: ctx}
}

func (c *temporalContext) Context() context.Context {
	return newWorkflowGoContext(c.ctx)
}

func (c *temporalContext) Now() time.Time { return workflow.Now(c.ctx) }

func (c *temporalContext) NewTimer(_ context.Context, d time.Duration) (Future[time.Time], error) {
	return &temporalTimerFuture{ctx: c.ctx, fut: workflow.NewTimer(c.ctx, d)}, nil
}

func (c *temporalContext) WithCancel() (WorkflowContext, context.CancelFunc) {
	child, cancel := workflow.WithCancel(c.ctx)
	return &temporalContext{ctx: child}, context.CancelFunc(cancel)
}

// workflowGoContext bridges workflow.Context's Deadline/Done/Err/Value to the
// stdlib context.Context interface the executors are written against. Only
// cancellation and value lookup are meaningful inside a Temporal workflow;
// Deadline always reports not-set since Temporal timers, not Go deadlines,
// govern workflow timeouts. done is closed by a workflow.Go coroutine that
// blocks on the Temporal channel, keeping the bridge replay-safe rather than
// spawning a real OS goroutine inside workflow code.
type workflowGoContext struct {
	ctx  workflow.Context
	done chan struct{}
}

func newWorkflowGoContext(ctx workflow.Context) workflowGoContext {
	w := workflowGoContext{ctx: ctx, done: make(chan struct{})}
	workflow.Go(ctx, func(gctx workflow.Context) {
		gctx.Done().Receive(gctx, nil)
		close(w.done)
	})
	return w
}

func (w workflowGoContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (w workflowGoContext) Done() <-chan struct{}       { return w.done }
func (w workflowGoContext) Err() error                  { return w.ctx.Err() }
func (w workflowGoContext) Value(key any) any           { return w.ctx.Value(key) }

type temporalTimerFuture struct {
	ctx workflow.Context
	fut workflow.Future
}

func (f *temporalTimerFuture) Get(context.Context) (time.Time, error) {
	var zero struct{}
	err := f.fut.Get(f.ctx, &zero)
	return workflow.Now(f.ctx), err
}

func (f *temporalTimerFuture) IsReady() bool { return f.fut.IsReady() }
