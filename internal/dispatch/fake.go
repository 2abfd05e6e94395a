package dispatch

import (
	"context"
	"sync"
)

// Call records one dispatch invocation, for assertions in tests.
type Call struct {
	Method string
	Args   []interface{}
}

// Fake is an in-memory Bus that records every call instead of
// publishing to Redis.
type Fake struct {
	mu    sync.Mutex
	Calls []Call
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) record(method string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: method, Args: args})
}

func (f *Fake) UpdateDefaultGasPrice(ctx context.Context, blockNumber uint64) {
	f.record("update_default_gas_price", blockNumber)
}

func (f *Fake) UpdateTransaction(ctx context.Context, transactionID int64, status string) {
	f.record("update_transaction", transactionID, status)
}

func (f *Fake) UpdateTokenCache(ctx context.Context, contract string, addresses []string) {
	f.record("update_token_cache", contract, addresses)
}

func (f *Fake) SendFilterNotification(ctx context.Context, filterID, topic, data string) {
	f.record("send_filter_notification", filterID, topic, data)
}

func (f *Fake) NotifyNewBlock(ctx context.Context, blockNumber uint64) {
	f.record("notify_new_block", blockNumber)
}
