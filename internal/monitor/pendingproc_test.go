package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ethmonitor/internal/pending"
	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
)

// S4 — pending-tx expiry: an entry older than PendingTxExpiry with no
// on-chain sighting is evicted, with no database writes or dispatches.
func TestPendingCheck_ExpiresStaleEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := NewMockBus(ctrl)
	st := store.NewMemStore()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	tr := pending.New(rdb)

	fake := rpcclient.NewFake()
	pair := &rpcclient.Pair{Query: fake, Filter: fake}

	m := New(Config{PendingTxExpiry: 60 * time.Second}, pair, st, tr, bus, nil)

	oldTime := time.Now().Add(-70 * time.Second)
	_, err := tr.AddIfAbsent(context.Background(), "0xdead", oldTime)
	require.NoError(t, err)

	m.runPendingCheck(context.Background())

	size, err := tr.Size(context.Background())
	require.NoError(t, err)
	require.Zero(t, size)
	require.Empty(t, st.Txs())
}
