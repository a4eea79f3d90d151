package replicated

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/registry/store"
	"github.com/tiercade/tiercade/types"
)

// fakeMap is a minimal in-memory stand-in for *rmap.Map so the replicated
// store can be unit-tested without Redis.
type fakeMap struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeMap() *fakeMap { return &fakeMap{data: make(map[string]string)} }

func (f *fakeMap) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeMap) Set(_ context.Context, key, value string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return value, nil
}

func (f *fakeMap) Delete(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.data[key]
	delete(f.data, key)
	return v, nil
}

func (f *fakeMap) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.data))
	for k := range f.data {
		out = append(out, k)
	}
	return out
}

func TestReplicatedMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeMap())
	meta := &types.FunctionMetadata{ID: "f1", ActiveVersion: "v1", Versions: []string{"v1"}}
	require.NoError(t, s.SaveMetadata(ctx, meta))

	got, err := s.GetMetadata(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "v1", got.ActiveVersion)

	all, err := s.ListMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteMetadata(ctx, "f1"))
	_, err = s.GetMetadata(ctx, "f1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// TestReplicatedVisibleAcrossNodes models two nodes sharing the same
// replicated map: a write on one node is immediately visible through the
// other node's store handle, the property the propagation-window
// invariant in spec §4.1/§8 depends on.
func TestReplicatedVisibleAcrossNodes(t *testing.T) {
	ctx := context.Background()
	shared := newFakeMap()
	nodeA := New(shared)
	nodeB := New(shared)

	require.NoError(t, nodeA.SaveMetadata(ctx, &types.FunctionMetadata{ID: "f1", ActiveVersion: "v2", Versions: []string{"v1", "v2"}}))

	got, err := nodeB.GetMetadata(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "v2", got.ActiveVersion)
}
