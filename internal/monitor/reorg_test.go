package monitor

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
)

// S2 — reorg: node disagrees with the store from block 500 down to
// 496; block 495 matches. The fork point is 495 and everything above
// it is marked stale.
func TestHandleReorg_FindsForkPoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := NewMockBus(ctrl)
	st := store.NewMemStore()

	for n := uint64(490); n <= 500; n++ {
		hash := fakeHash(n, "store")
		st.UpsertBlock(context.Background(), store.BlockRecord{
			Number:    n,
			Hash:      hash,
			Timestamp: int64(n),
		})
	}
	st.SetHighWater(context.Background(), 500)
	st.SeedCollectiblesLastBlock(500)

	fake := rpcclient.NewFake()
	// Node agrees on blocks up to and including 495, then diverges.
	for n := uint64(486); n <= 500; n++ {
		var hash common.Hash
		if n <= 495 {
			hash = fakeHash(n, "store")
		} else {
			hash = fakeHash(n, "node-fork")
		}
		num := hexutil.Big(*new(big.Int).SetUint64(n))
		fake.Blocks[n] = &rpcclient.Block{Number: &num, Hash: hash}
	}

	pair := &rpcclient.Pair{Query: fake, Filter: fake}
	m := New(Config{ReorgBatch: 10, ReorgMaxDepth: 1000}, pair, st, nil, bus, nil)
	m.lastBlockNumber = 500

	ok := m.handleReorg(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(495), m.lastBlockNumber)

	for n := uint64(496); n <= 500; n++ {
		rec, err := st.BlockAt(context.Background(), n)
		require.NoError(t, err)
		require.True(t, rec.Stale, "block %d should be stale", n)
	}
	rec, err := st.BlockAt(context.Background(), 490)
	require.NoError(t, err)
	require.False(t, rec.Stale)

	hw, ok2, err := st.HighWaterMark(context.Background())
	require.NoError(t, err)
	require.True(t, ok2)
	require.Equal(t, uint64(495), hw)
}

func fakeHash(n uint64, salt string) common.Hash {
	return common.BytesToHash([]byte(salt + string(rune(n))))
}

// When the walk never finds agreement all the way down near genesis,
// it must stop cleanly instead of underflowing the batch cursor and
// issuing bulk fetches for near-2^64 block numbers.
func TestHandleReorg_NoForkPointNearGenesis(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := NewMockBus(ctrl)
	st := store.NewMemStore()

	for n := uint64(0); n <= 5; n++ {
		st.UpsertBlock(context.Background(), store.BlockRecord{
			Number:    n,
			Hash:      fakeHash(n, "store"),
			Timestamp: int64(n),
		})
	}
	st.SetHighWater(context.Background(), 5)

	fake := rpcclient.NewFake()
	for n := uint64(0); n <= 5; n++ {
		num := hexutil.Big(*new(big.Int).SetUint64(n))
		fake.Blocks[n] = &rpcclient.Block{Number: &num, Hash: fakeHash(n, "node-fork")}
	}

	pair := &rpcclient.Pair{Query: fake, Filter: fake}
	m := New(Config{ReorgBatch: 10, ReorgMaxDepth: 1000}, pair, st, nil, bus, nil)
	m.lastBlockNumber = 5

	ok := m.handleReorg(context.Background())
	require.False(t, ok)
	require.Equal(t, uint64(5), m.lastBlockNumber, "lastBlockNumber must be untouched when no fork point is found")
}
