package rpcclient

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Fake is an in-memory Client for tests: blocks and transactions are
// seeded directly rather than fetched over HTTP.
type Fake struct {
	mu sync.Mutex

	Blocks       map[uint64]*Block
	Transactions map[common.Hash]*Transaction
	FilterHashes []common.Hash
	FilterID     string
	Height       uint64
}

func NewFake() *Fake {
	return &Fake{
		Blocks:       make(map[uint64]*Block),
		Transactions: make(map[common.Hash]*Transaction),
	}
}

func (f *Fake) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Height, nil
}

func (f *Fake) GetBlockByNumber(ctx context.Context, number uint64, fullTx bool) (*Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Blocks[number], nil
}

func (f *Fake) GetTransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Transactions[hash], nil
}

func (f *Fake) GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Log
	for n := fromBlock; n <= toBlock; n++ {
		b, ok := f.Blocks[n]
		if !ok {
			continue
		}
		for _, tx := range b.Transactions {
			out = append(out, tx.Logs...)
		}
	}
	return out, nil
}

func (f *Fake) NewPendingTransactionFilter(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FilterID, nil
}

func (f *Fake) GetFilterChanges(ctx context.Context, filterID string) ([]common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.FilterHashes
	f.FilterHashes = nil
	return out, nil
}

func (f *Fake) BulkGetBlocksByNumber(ctx context.Context, numbers []uint64, fullTx bool) ([]*Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Block, len(numbers))
	for i, n := range numbers {
		out[i] = f.Blocks[n]
	}
	return out, nil
}

func (f *Fake) Close() {}

var _ Client = (*Fake)(nil)
