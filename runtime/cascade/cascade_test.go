package cascade

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/registry/store/memory"
	"github.com/tiercade/tiercade/runtime/agentexec"
	"github.com/tiercade/tiercade/runtime/cache"
	"github.com/tiercade/tiercade/runtime/codeexec"
	"github.com/tiercade/tiercade/runtime/engine"
	"github.com/tiercade/tiercade/runtime/genexec"
	"github.com/tiercade/tiercade/runtime/model"
	"github.com/tiercade/tiercade/runtime/tooldispatch"
	"github.com/tiercade/tiercade/telemetry"
	"github.com/tiercade/tiercade/types"
)

type stubModelClient struct {
	resp *model.Response
	err  error
}

func (s *stubModelClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return s.resp, s.err
}

func newHarness(t *testing.T, client model.Client) (*registry.Registry, *Executor) {
	t.Helper()
	reg := registry.New(memory.NewMetadataStore(), memory.NewCodeStore())
	code := codeexec.New(reg, nil, nil, telemetry.NoopLogger{})
	gen := genexec.New(reg, client, cache.NewMemoryStore())
	dispatch := tooldispatch.New(nil, nil)
	agent := agentexec.New(reg, client, dispatch, nil)
	return reg, New(reg, code, gen, agent)
}

func deployCodeFn(t *testing.T, reg *registry.Registry, id, source string) {
	t.Helper()
	_, err := reg.Deploy(context.Background(), registry.DeployRequest{
		ID: id, Type: types.FunctionTypeCode, Version: "v1",
		Code:       &types.CodeConfig{Language: "javascript", EntryPoint: "handler"},
		Source:     []byte(source),
		Language:   "javascript",
		EntryPoint: "handler",
	})
	require.NoError(t, err)
}

func deployGenerativeFn(t *testing.T, reg *registry.Registry, id string, cfg *types.GenerativeConfig) {
	t.Helper()
	_, err := reg.Deploy(context.Background(), registry.DeployRequest{
		ID: id, Type: types.FunctionTypeGenerative, Version: "v1", Generative: cfg,
	})
	require.NoError(t, err)
}

func deployCascadeFn(t *testing.T, reg *registry.Registry, id string, cfg *types.CascadeConfig) {
	t.Helper()
	_, err := reg.Deploy(context.Background(), registry.DeployRequest{
		ID: id, Type: types.FunctionTypeCascade, Version: "v1", Cascade: cfg,
	})
	require.NoError(t, err)
}

func TestRunSucceedsOnCodeTierWithNoEscalations(t *testing.T) {
	reg, exec := newHarness(t, &stubModelClient{})
	deployCodeFn(t, reg, "code1", `function handler(input) { return { sum: input.a + input.b } }`)
	deployCascadeFn(t, reg, "cascade1", &types.CascadeConfig{
		Tiers:         []types.FunctionType{types.FunctionTypeCode},
		TotalTimeout:  time.Second,
		TierFunctions: map[types.FunctionType]string{types.FunctionTypeCode: "code1"},
	})

	wfCtx := engine.NewInMemContext(context.Background())
	result, err := exec.Run(wfCtx, "cascade1", "", map[string]any{"a": 1, "b": 2}, nil)
	require.NoError(t, err)
	require.Equal(t, types.FunctionTypeCode, result.SuccessTier)
	require.Equal(t, 0, result.Escalations)
	require.Len(t, result.History, 1)
	require.Equal(t, types.AttemptCompleted, result.History[0].Status)
}

func TestRunEscalatesFromFailingCodeTierToGenerativeTier(t *testing.T) {
	client := &stubModelClient{resp: &model.Response{Text: `{"answer":"ok"}`}}
	reg, exec := newHarness(t, client)
	deployCodeFn(t, reg, "code1", `function handler() { throw new Error("boom") }`)
	deployGenerativeFn(t, reg, "gen1", &types.GenerativeConfig{Model: "m1", UserPromptTemplate: "solve {{input}}"})
	deployCascadeFn(t, reg, "cascade1", &types.CascadeConfig{
		Tiers:        []types.FunctionType{types.FunctionTypeCode, types.FunctionTypeGenerative},
		TotalTimeout: 5 * time.Second,
		TierFunctions: map[types.FunctionType]string{
			types.FunctionTypeCode:       "code1",
			types.FunctionTypeGenerative: "gen1",
		},
	})

	wfCtx := engine.NewInMemContext(context.Background())
	result, err := exec.Run(wfCtx, "cascade1", "", map[string]any{"input": "2+2"}, nil)
	require.NoError(t, err)
	require.Equal(t, types.FunctionTypeGenerative, result.SuccessTier)
	require.Equal(t, 1, result.Escalations)
	require.Len(t, result.History, 2)
	require.Equal(t, types.AttemptFailed, result.History[0].Status)
	require.Equal(t, types.AttemptCompleted, result.History[1].Status)
	require.NotNil(t, result.History[0].Error)
}

func TestRunReachesHumanTierWhenAllInvocableTiersFail(t *testing.T) {
	reg, exec := newHarness(t, &stubModelClient{})
	deployCodeFn(t, reg, "code1", `function handler() { throw new Error("boom") }`)
	deployCascadeFn(t, reg, "cascade1", &types.CascadeConfig{
		Tiers:        []types.FunctionType{types.FunctionTypeCode, types.FunctionType("human")},
		TotalTimeout: 5 * time.Second,
		TierFunctions: map[types.FunctionType]string{
			types.FunctionTypeCode: "code1",
		},
	})

	wfCtx := engine.NewInMemContext(context.Background())
	result, err := exec.Run(wfCtx, "cascade1", "", map[string]any{}, []string{"oncall@example.com"})
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	require.Equal(t, []string{"oncall@example.com"}, result.Pending.Assignees)
	require.NotEmpty(t, result.Pending.TaskID)
	require.Equal(t, 1, result.Escalations)
}

func TestRunGlobalTimeoutProducesMatchingErrorMessage(t *testing.T) {
	reg, exec := newHarness(t, &stubModelClient{})
	deployCodeFn(t, reg, "code1", `function handler() { throw new Error("boom") }`)
	deployCascadeFn(t, reg, "cascade1", &types.CascadeConfig{
		Tiers:        []types.FunctionType{types.FunctionTypeCode},
		TotalTimeout: 1 * time.Nanosecond,
		TierFunctions: map[types.FunctionType]string{
			types.FunctionTypeCode: "code1",
		},
	})

	wfCtx := engine.NewInMemContext(context.Background())
	start := time.Now()
	result, err := exec.Run(wfCtx, "cascade1", "", map[string]any{}, nil)
	elapsed := time.Since(start)
	require.Error(t, err)
	require.Regexp(t, regexp.MustCompile(`(?i)timeout|exhausted`), err.Error())
	require.Less(t, elapsed, 10*time.Second)
	require.Less(t, result.TotalDurationMs, int64(10000))
}
