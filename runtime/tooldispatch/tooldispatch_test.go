package tooldispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/registry/store/memory"
	"github.com/tiercade/tiercade/runtime/codeexec"
	"github.com/tiercade/tiercade/telemetry"
	"github.com/tiercade/tiercade/types"
)

type fakeBuiltin struct {
	output any
	err    error
}

func (f *fakeBuiltin) Invoke(context.Context, any) (any, error) { return f.output, f.err }

func TestDispatchInlineRunsSandboxedCode(t *testing.T) {
	d := New(nil, nil)
	def := &types.ToolDefinition{
		Name: "double", Implementation: types.ToolImplInline,
		Inline: &types.InlineTool{Source: []byte(`function handler(input) { return { doubled: input.n * 2 } }`), Language: "javascript"},
	}
	rec := d.Dispatch(context.Background(), def, map[string]any{"n": 21}, 0)
	require.True(t, rec.Success)
	out := rec.Output.(map[string]any)
	require.EqualValues(t, 42, out["doubled"])
}

func TestDispatchInlineFailureIsRecordedNotRaised(t *testing.T) {
	d := New(nil, nil)
	def := &types.ToolDefinition{
		Name: "boom", Implementation: types.ToolImplInline,
		Inline: &types.InlineTool{Source: []byte(`function handler() { throw new Error("bad") }`)},
	}
	rec := d.Dispatch(context.Background(), def, nil, 0)
	require.False(t, rec.Success)
	require.NotEmpty(t, rec.Error)
}

func TestDispatchFunctionRefInvokesCodeExecutor(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(memory.NewMetadataStore(), memory.NewCodeStore())
	_, err := reg.Deploy(ctx, registry.DeployRequest{
		ID: "helper", Type: types.FunctionTypeCode, Version: "v1",
		Code: &types.CodeConfig{Language: "javascript", EntryPoint: "handler"},
		Source: []byte(`function handler(input) { return { ok: true } }`), Language: "javascript", EntryPoint: "handler",
	})
	require.NoError(t, err)

	exec := codeexec.New(reg, nil, nil, telemetry.NoopLogger{})
	d := New(exec, nil)
	def := &types.ToolDefinition{Name: "call_helper", Implementation: types.ToolImplFunctionRef, FunctionRef: "helper"}

	rec := d.Dispatch(ctx, def, nil, 0)
	require.True(t, rec.Success)
}

func TestDispatchAPINon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"ERR_CODE_42"}`))
	}))
	defer server.Close()

	d := New(nil, nil)
	def := &types.ToolDefinition{Name: "call_api", Implementation: types.ToolImplAPI, API: &types.APITool{Endpoint: server.URL, Method: http.MethodGet}}

	rec := d.Dispatch(context.Background(), def, nil, 0)
	require.False(t, rec.Success)
	require.Contains(t, rec.Error, "ERR_CODE_42")
}

func TestDispatchAPISuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	d := New(nil, nil)
	def := &types.ToolDefinition{Name: "call_api", Implementation: types.ToolImplAPI, API: &types.APITool{Endpoint: server.URL, Method: http.MethodPost}}

	rec := d.Dispatch(context.Background(), def, map[string]any{"x": 1}, 0)
	require.True(t, rec.Success)
	out := rec.Output.(map[string]any)
	require.Equal(t, "ok", out["result"])
}

func TestDispatchBuiltinUnregisteredIsFailure(t *testing.T) {
	d := New(nil, nil)
	def := &types.ToolDefinition{Name: "search", Implementation: types.ToolImplBuiltin, Builtin: "web_search"}
	rec := d.Dispatch(context.Background(), def, nil, 0)
	require.False(t, rec.Success)
}

func TestDispatchBuiltinRegistered(t *testing.T) {
	d := New(nil, map[string]Builtin{"web_search": &fakeBuiltin{output: "results"}})
	def := &types.ToolDefinition{Name: "search", Implementation: types.ToolImplBuiltin, Builtin: "web_search"}
	rec := d.Dispatch(context.Background(), def, nil, 0)
	require.True(t, rec.Success)
	require.Equal(t, "results", rec.Output)
}

func TestDispatchBuiltinNotInClosedSetIsFailure(t *testing.T) {
	d := New(nil, map[string]Builtin{"not_a_builtin": &fakeBuiltin{}})
	def := &types.ToolDefinition{Name: "x", Implementation: types.ToolImplBuiltin, Builtin: "not_a_builtin"}
	rec := d.Dispatch(context.Background(), def, nil, 0)
	require.False(t, rec.Success)
}

func TestDispatchInlineDeadlineBoundedByRemainingBudget(t *testing.T) {
	d := New(nil, nil)
	def := &types.ToolDefinition{
		Name: "slow", Implementation: types.ToolImplInline,
		Inline: &types.InlineTool{Source: []byte(`function handler() { while (true) {} }`)},
	}
	start := time.Now()
	rec := d.Dispatch(context.Background(), def, nil, 100*time.Millisecond)
	require.False(t, rec.Success)
	require.Less(t, time.Since(start), 2*time.Second)
}
