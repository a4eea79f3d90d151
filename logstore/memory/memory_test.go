package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiercade/tiercade/types"
)

func TestListOrdersByTimestampAndAppliesSinceAndLimit(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, "fn-1", types.LogEntry{Timestamp: base.Add(2 * time.Second), Level: "info", Message: "c"}))
	require.NoError(t, store.Append(ctx, "fn-1", types.LogEntry{Timestamp: base, Level: "info", Message: "a"}))
	require.NoError(t, store.Append(ctx, "fn-1", types.LogEntry{Timestamp: base.Add(time.Second), Level: "info", Message: "b"}))
	require.NoError(t, store.Append(ctx, "fn-2", types.LogEntry{Timestamp: base, Level: "info", Message: "other-function"}))

	entries, err := store.List(ctx, "fn-1", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{entries[0].Message, entries[1].Message, entries[2].Message})

	since, err := store.List(ctx, "fn-1", base.Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, since, 2)
	require.Equal(t, "b", since[0].Message)

	limited, err := store.List(ctx, "fn-1", time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "a", limited[0].Message)
}

func TestListOnUnknownFunctionReturnsEmpty(t *testing.T) {
	store := New()
	entries, err := store.List(context.Background(), "missing", time.Time{}, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}
