package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/execstore"
	"github.com/tiercade/tiercade/types"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	store := New()
	ctx := context.Background()

	record := &types.ExecutionRecord{
		Invocation: types.Invocation{ExecutionID: "exec-1", FunctionID: "fn-1", Status: types.StatusCompleted},
		Output:     map[string]any{"ok": true},
	}
	require.NoError(t, store.Put(ctx, "exec-1", record))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, "fn-1", got.Invocation.FunctionID)
	require.Equal(t, types.StatusCompleted, got.Invocation.Status)

	record.Invocation.FunctionID = "mutated"
	require.Equal(t, "fn-1", got.Invocation.FunctionID, "Get must return an independent copy")
}

func TestGetUnknownExecutionReturnsErrNotFound(t *testing.T) {
	store := New()
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, execstore.ErrNotFound)
}

func TestPutOverwritesPriorRecordForSameExecutionID(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "exec-1", &types.ExecutionRecord{Invocation: types.Invocation{Status: types.StatusPending}}))
	require.NoError(t, store.Put(ctx, "exec-1", &types.ExecutionRecord{Invocation: types.Invocation{Status: types.StatusCompleted}}))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, got.Invocation.Status)
}
