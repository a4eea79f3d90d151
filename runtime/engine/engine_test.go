package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemTimerFires(t *testing.T) {
	wfCtx := NewInMemContext(context.Background())
	start := time.Now()
	fut, err := wfCtx.NewTimer(wfCtx.Context(), 20*time.Millisecond)
	require.NoError(t, err)

	got, err := fut.Get(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, got.Sub(start), 15*time.Millisecond)
	require.True(t, fut.IsReady())
}

func TestInMemTimerCancelledByParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wfCtx := NewInMemContext(ctx)
	fut, err := wfCtx.NewTimer(ctx, time.Second)
	require.NoError(t, err)

	cancel()
	_, err = fut.Get(context.Background())
	require.Error(t, err)
}

func TestWithCancelDoesNotAffectParent(t *testing.T) {
	parent := NewInMemContext(context.Background())
	child, cancel := parent.WithCancel()
	cancel()

	select {
	case <-child.Context().Done():
	default:
		t.Fatal("expected child context to be cancelled")
	}
	select {
	case <-parent.Context().Done():
		t.Fatal("parent context must not be cancelled")
	default:
	}
}
