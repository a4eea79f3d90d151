package codeexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/registry/store/memory"
	"github.com/tiercade/tiercade/telemetry"
	"github.com/tiercade/tiercade/types"
)

func newTestExecutor(t *testing.T) (*Executor, *registry.Registry) {
	t.Helper()
	reg := registry.New(memory.NewMetadataStore(), memory.NewCodeStore())
	return New(reg, nil, nil, telemetry.NoopLogger{}), reg
}

func TestExecuteRunsSourceWhenNoPrecompiledArtifact(t *testing.T) {
	ctx := context.Background()
	exec, reg := newTestExecutor(t)

	_, err := reg.Deploy(ctx, registry.DeployRequest{
		ID: "sum", Type: types.FunctionTypeCode, Version: "v1",
		Code:       &types.CodeConfig{Language: "javascript", EntryPoint: "handler"},
		Source:     []byte(`function handler(input) { return { sum: input.numbers.reduce((a,b)=>a+b,0) } }`),
		Language:   "javascript",
		EntryPoint: "handler",
	})
	require.NoError(t, err)

	out, meta, err := exec.Execute(ctx, "sum", "", map[string]any{"numbers": []int{1, 2, 3, 4, 5}})
	require.NoError(t, err)
	require.False(t, meta.UsedPrecompiled) // no compiler configured, source ran directly
	result := out.(map[string]any)
	require.EqualValues(t, 15, result["sum"])
}

func TestExecuteUnknownFunctionFails(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)
	_, _, err := exec.Execute(ctx, "missing", "", nil)
	require.Error(t, err)
}

func TestExecuteRuntimeErrorIsReported(t *testing.T) {
	ctx := context.Background()
	exec, reg := newTestExecutor(t)
	_, err := reg.Deploy(ctx, registry.DeployRequest{
		ID: "boom", Type: types.FunctionTypeCode, Version: "v1",
		Code:       &types.CodeConfig{Language: "javascript", EntryPoint: "handler"},
		Source:     []byte(`function handler() { throw new Error("nope") }`),
		Language:   "javascript",
		EntryPoint: "handler",
	})
	require.NoError(t, err)

	_, meta, err := exec.Execute(ctx, "boom", "", nil)
	require.Error(t, err)
	require.Greater(t, meta.DurationMs, int64(-1))
}
