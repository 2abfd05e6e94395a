package pending

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func TestTracker_AddIfAbsent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	added, err := tr.AddIfAbsent(ctx, "0xabc", now)
	require.NoError(t, err)
	require.True(t, added)

	added, err = tr.AddIfAbsent(ctx, "0xabc", now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, added, "a second arrival must not clobber the first-seen time")

	size, err := tr.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)
}

func TestTracker_SnapshotAndRemove(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	_, err := tr.AddIfAbsent(ctx, "0x1", now)
	require.NoError(t, err)
	_, err = tr.AddIfAbsent(ctx, "0x2", now)
	require.NoError(t, err)

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.WithinDuration(t, now, snap["0x1"], time.Second)

	require.NoError(t, tr.Remove(ctx, "0x1"))
	snap, err = tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	_, ok := snap["0x1"]
	require.False(t, ok)
}

func TestTracker_WriteHeartbeat(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, tr.WriteHeartbeat(ctx, "monitor_sanity_check_ok", 20*time.Second))
}
