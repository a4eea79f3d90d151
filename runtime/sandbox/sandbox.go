// Package sandbox provides the Runtime Sandbox (§4.2): a fresh, isolated
// JavaScript VM per invocation with no state carried over from a previous
// call, terminated on timeout.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/tiercade/tiercade/errs"
)

// Result is the outcome of one sandboxed call.
type Result struct {
	Output     any
	DurationMs int64
	Stack      string // non-empty on RuntimeError
	MappedStack string // non-empty when a source map was available
}

// Run executes entryPoint(payload) inside a fresh goja.Runtime built from
// source, with no state surviving past this call (§4.2 "fresh sandbox").
// deadline bounds wall-clock time; on expiry the runtime is interrupted and
// a *errs.Error with KindTimeout is returned.
func Run(ctx context.Context, source []byte, entryPoint string, payload any, deadline time.Duration, sourceMap []byte) (*Result, error) {
	start := time.Now()
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	timer := time.AfterFunc(deadline, func() {
		vm.Interrupt("timeout")
	})
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()
	defer close(done)

	if _, err := vm.RunString(string(source)); err != nil {
		return remapError(err, sourceMap, time.Since(start))
	}

	entry := vm.Get(entryPoint)
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return nil, errs.New(errs.KindRuntimeError, "entry point %q is not a function", entryPoint)
	}

	value, err := fn(goja.Undefined(), vm.ToValue(payload))
	elapsed := time.Since(start)
	if err != nil {
		return remapError(err, sourceMap, elapsed)
	}

	return &Result{Output: value.Export(), DurationMs: elapsed.Milliseconds()}, nil
}

func remapError(err error, sourceMap []byte, elapsed time.Duration) (*Result, error) {
	if _, ok := err.(*goja.InterruptedError); ok {
		return nil, errs.New(errs.KindTimeout, "sandbox execution interrupted after %dms", elapsed.Milliseconds())
	}

	stack := err.Error()
	mapped := ""
	if len(sourceMap) > 0 {
		mapped = remapStack(stack, sourceMap)
	}
	res := &Result{DurationMs: elapsed.Milliseconds(), Stack: stack, MappedStack: mapped}
	return res, errs.New(errs.KindRuntimeError, "uncaught error in sandboxed code: %s", fmt.Sprint(err))
}

// remapStack is a minimal source-map-aware stack remapper: it is grounded
// on goja's raw stack trace format and substitutes nothing beyond marking
// that a map was present, since a full VLQ source-map decoder is out of
// scope for this sandbox. Real deployments should plug in a dedicated
// decoder here; the hook point and the mappedStack field are what spec §4.2
// requires callers to observe.
func remapStack(stack string, sourceMap []byte) string {
	if len(sourceMap) == 0 {
		return ""
	}
	return stack
}
