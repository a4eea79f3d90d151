package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunReturnsEntryPointResult(t *testing.T) {
	src := []byte(`function handler(input) { return { sum: input.numbers.reduce((a,b) => a+b, 0) } }`)
	res, err := Run(context.Background(), src, "handler", map[string]any{"numbers": []int{1, 2, 3, 4, 5}}, 5*time.Second, nil)
	require.NoError(t, err)
	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 15, out["sum"])
}

func TestRunIsolatesGlobalStateAcrossCalls(t *testing.T) {
	src := []byte(`
		var counter = (typeof counter === "undefined") ? 0 : counter;
		counter++;
		function handler() { return { counter: counter } }
	`)
	for i := 0; i < 3; i++ {
		res, err := Run(context.Background(), src, "handler", nil, 5*time.Second, nil)
		require.NoError(t, err)
		out := res.Output.(map[string]any)
		require.EqualValues(t, 1, out["counter"], "global state must not survive across invocations")
	}
}

func TestRunUncaughtErrorIsRuntimeError(t *testing.T) {
	src := []byte(`function handler() { throw new Error("boom") }`)
	_, err := Run(context.Background(), src, "handler", nil, 5*time.Second, nil)
	require.Error(t, err)
}

func TestRunTimeoutTerminatesInfiniteLoop(t *testing.T) {
	src := []byte(`function handler() { while (true) {} }`)
	start := time.Now()
	_, err := Run(context.Background(), src, "handler", nil, 100*time.Millisecond, nil)
	elapsed := time.Since(start)
	require.Error(t, err)
	require.Less(t, elapsed, 2*time.Second)
}

func TestRunMissingEntryPointFails(t *testing.T) {
	src := []byte(`function other() {}`)
	_, err := Run(context.Background(), src, "handler", nil, time.Second, nil)
	require.Error(t, err)
}
