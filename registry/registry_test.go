package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/registry/store/memory"
	"github.com/tiercade/tiercade/types"
)

func newTestRegistry() *Registry {
	return New(memory.NewMetadataStore(), memory.NewCodeStore())
}

func TestDeployCreatesFunction(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	m, err := r.Deploy(ctx, DeployRequest{
		ID:      "sum",
		Type:    types.FunctionTypeCode,
		Version: "v1",
		Code:    &types.CodeConfig{Language: "javascript", EntryPoint: "handler"},
		Source:  []byte("function handler(input) { return input }"),
	})
	require.NoError(t, err)
	require.Equal(t, "v1", m.ActiveVersion)
	require.Equal(t, []string{"v1"}, m.Versions)

	artifact, err := r.GetCompiled(ctx, "sum", "v1")
	require.NoError(t, err)
	require.Equal(t, []byte("function handler(input) { return input }"), artifact.Source)
}

func TestDeployRejectsInvalidID(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "has a space", Type: types.FunctionTypeCode, Version: "v1"})
	require.Error(t, err)
}

func TestDeploySecondVersionAppends(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v1", Generative: &types.GenerativeConfig{Model: "m1"}})
	require.NoError(t, err)

	m, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v2", Generative: &types.GenerativeConfig{Model: "m2"}})
	require.NoError(t, err)
	require.Equal(t, "v2", m.ActiveVersion)
	require.Equal(t, []string{"v1", "v2"}, m.Versions)
}

func TestDeployDuplicateVersionFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v1", Generative: &types.GenerativeConfig{}})
	require.NoError(t, err)
	_, err = r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v1", Generative: &types.GenerativeConfig{}})
	require.Error(t, err)
}

func TestRollbackSetsActiveVersionWithoutMutatingVersions(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v1", Generative: &types.GenerativeConfig{}})
	require.NoError(t, err)
	_, err = r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v2", Generative: &types.GenerativeConfig{}})
	require.NoError(t, err)

	m, err := r.Rollback(ctx, "f1", "v1")
	require.NoError(t, err)
	require.Equal(t, "v1", m.ActiveVersion)
	require.Equal(t, "v2", m.RolledBackFrom)
	require.Equal(t, []string{"v1", "v2"}, m.Versions)
}

func TestRollbackUnknownVersionFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v1", Generative: &types.GenerativeConfig{}})
	require.NoError(t, err)
	_, err = r.Rollback(ctx, "f1", "v9")
	require.Error(t, err)
}

func TestDeleteRemovesMetadataAndArtifacts(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeCode, Version: "v1", Code: &types.CodeConfig{}, Source: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "f1"))
	_, err = r.Get(ctx, "f1")
	require.Error(t, err)
	_, err = r.GetCompiled(ctx, "f1", "v1")
	require.Error(t, err)
}

// TestConcurrentDeploysToDistinctIDsDoNotBlock exercises the per-id lock:
// concurrent deploys to different ids must not serialize on a single global
// lock (§4.1 "reads are lock-free", writes sequenced only per id).
func TestConcurrentDeploysToDistinctIDsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := r.Deploy(ctx, DeployRequest{ID: id, Type: types.FunctionTypeGenerative, Version: "v1", Generative: &types.GenerativeConfig{}})
			require.NoError(t, err)
		}(id)
	}
	wg.Wait()

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(ids))
}

func TestConcurrentDeploysToSameIDAppendSequentially(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: "v0", Generative: &types.GenerativeConfig{}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	versions := []string{"v1", "v2", "v3", "v4", "v5"}
	for _, v := range versions {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			_, err := r.Deploy(ctx, DeployRequest{ID: "f1", Type: types.FunctionTypeGenerative, Version: v, Generative: &types.GenerativeConfig{}})
			require.NoError(t, err)
		}(v)
	}
	wg.Wait()

	m, err := r.Get(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, m.Versions, 6) // v0 plus the five concurrent appends
}
