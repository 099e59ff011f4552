package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/lifecycle"
)

func newSnapshotStore(t *testing.T) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotStore(client, time.Minute), mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, _ := newSnapshotStore(t)
	ctx := context.Background()

	remaining := map[int64]decimal.Decimal{
		10: decimal.RequireFromString("2.5"),
		11: decimal.Zero,
	}
	require.NoError(t, store.SetRemaining(ctx, 7, lifecycle.KindBill, remaining))

	got, err := store.GetRemaining(ctx, 7, lifecycle.KindBill)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "2.5", got[10].String())
	require.True(t, got[11].IsZero())

	// Kinds are cached independently.
	miss, err := store.GetRemaining(ctx, 7, lifecycle.KindReceiving)
	require.NoError(t, err)
	require.Nil(t, miss)
}

func TestSnapshotInvalidateDropsAllKinds(t *testing.T) {
	store, _ := newSnapshotStore(t)
	ctx := context.Background()

	qty := map[int64]decimal.Decimal{1: decimal.NewFromInt(3)}
	require.NoError(t, store.SetRemaining(ctx, 9, lifecycle.KindBill, qty))
	require.NoError(t, store.SetRemaining(ctx, 9, lifecycle.KindReceiving, qty))

	require.NoError(t, store.Invalidate(ctx, 9))

	for _, kind := range []lifecycle.DocKind{lifecycle.KindBill, lifecycle.KindReceiving} {
		got, err := store.GetRemaining(ctx, 9, kind)
		require.NoError(t, err)
		require.Nil(t, got)
	}
}

func TestSnapshotExpires(t *testing.T) {
	store, mr := newSnapshotStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRemaining(ctx, 3, lifecycle.KindBill, map[int64]decimal.Decimal{1: decimal.NewFromInt(1)}))
	mr.FastForward(2 * time.Minute)

	got, err := store.GetRemaining(ctx, 3, lifecycle.KindBill)
	require.NoError(t, err)
	require.Nil(t, got)
}
