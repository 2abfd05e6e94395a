package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemStore is an in-memory Store used by unit tests; it implements
// the same read-modify-write semantics as the Postgres-backed store
// without requiring a live database.
type MemStore struct {
	mu sync.Mutex

	blocks         map[uint64]BlockRecord
	highWater      uint64
	highWaterSet   bool
	txs            []TxRecord
	nextTxID       int64
	tokenTxs       map[string]TokenTxParams // key: txid:logindex
	knownTokens    map[string]bool
	tokenRegs      map[string][]string // contract -> addresses
	notifRegs      map[string]bool     // lowercase address -> registered (includes legacy alias)
	nonReadyTokens map[string]bool
	collectibles   uint64
	filterRegs     map[string][]FilterRegistration // "contract:topic" -> registrations
}

func NewMemStore() *MemStore {
	return &MemStore{
		blocks:         make(map[uint64]BlockRecord),
		tokenTxs:       make(map[string]TokenTxParams),
		knownTokens:    make(map[string]bool),
		tokenRegs:      make(map[string][]string),
		notifRegs:      make(map[string]bool),
		nonReadyTokens: make(map[string]bool),
		filterRegs:     make(map[string][]FilterRegistration),
	}
}

func (m *MemStore) Close() {}

func (m *MemStore) LatestNonStaleBlock(ctx context.Context) (*BlockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *BlockRecord
	for _, b := range m.blocks {
		if b.Stale {
			continue
		}
		b := b
		if best == nil || b.Number > best.Number {
			best = &b
		}
	}
	return best, nil
}

func (m *MemStore) HighWaterMark(ctx context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWater, m.highWaterSet, nil
}

func (m *MemStore) InitHighWaterMark(ctx context.Context, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highWater = n
	m.highWaterSet = true
	return nil
}

func (m *MemStore) BlockAt(ctx context.Context, n uint64) (*BlockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.blocks[n]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *MemStore) HighestBlockBelow(ctx context.Context, n uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var nums []uint64
	for num := range m.blocks {
		if num < n {
			nums = append(nums, num)
		}
	}
	if len(nums) == 0 {
		return 0, false, nil
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] > nums[j] })
	return nums[0], true, nil
}

func (m *MemStore) UpsertBlock(ctx context.Context, rec BlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Stale = false
	m.blocks[rec.Number] = rec
	return nil
}

func (m *MemStore) MarkStaleAbove(ctx context.Context, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for num, b := range m.blocks {
		if num > n {
			b.Stale = true
			m.blocks[num] = b
		}
	}
	return nil
}

func (m *MemStore) BumpHighWater(ctx context.Context, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.highWater {
		m.highWater = n
		m.highWaterSet = true
	}
	return nil
}

func (m *MemStore) SetHighWater(ctx context.Context, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highWater = n
	m.highWaterSet = true
	return nil
}

func (m *MemStore) FindTxByFromNonce(ctx context.Context, from string, nonce uint64) ([]TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TxRecord
	for _, t := range m.txs {
		if t.FromAddress == from && t.Nonce == nonce {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) FindTxByFromNonceHash(ctx context.Context, from string, nonce uint64, hash common.Hash) (*TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.FromAddress == from && t.Nonce == nonce && t.Hash == hash &&
			(t.Status != StatusError || t.Status == StatusNew) {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemStore) FindTxByFromNonceNotHashNotError(ctx context.Context, from string, nonce uint64, hash common.Hash) ([]TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TxRecord
	for _, t := range m.txs {
		if t.FromAddress == from && t.Nonce == nonce && t.Hash != hash &&
			(t.Status != StatusError || t.Status == StatusNew) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) UpdateTransactionStatus(ctx context.Context, id int64, status TxStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.txs {
		if m.txs[i].TransactionID == id {
			m.txs[i].Status = status
		}
	}
	return nil
}

func (m *MemStore) UpdateTransactionBlockNumber(ctx context.Context, id int64, blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.txs {
		if m.txs[i].TransactionID == id {
			m.txs[i].BlockNumber = &blockNumber
		}
	}
	return nil
}

func (m *MemStore) InsertTx(ctx context.Context, p InsertTxParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	m.txs = append(m.txs, TxRecord{
		TransactionID: m.nextTxID,
		Hash:          p.Hash,
		FromAddress:   p.FromAddress,
		ToAddress:     p.ToAddress,
		Nonce:         p.Nonce,
		Value:         p.Value,
		Gas:           p.Gas,
		GasPrice:      p.GasPrice,
		Data:          p.Data,
		Status:        StatusNew,
	})
	return m.nextTxID, nil
}

func (m *MemStore) UpsertTokenTx(ctx context.Context, p TokenTxParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenTxs[tokenTxKey(p.TransactionID, p.LogIndex)] = p
	return nil
}

func (m *MemStore) TokenTx(txID int64, logIndex int) (TokenTxParams, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tokenTxs[tokenTxKey(txID, logIndex)]
	return v, ok
}

func tokenTxKey(txID int64, logIndex int) string {
	return fmt.Sprintf("%d:%d", txID, logIndex)
}

func (m *MemStore) IsKnownToken(ctx context.Context, contract string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownTokens[contract], nil
}

func (m *MemStore) IsTokenRegistered(ctx context.Context, addrs ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, regs := range m.tokenRegs {
		for _, r := range regs {
			for _, a := range addrs {
				if r == a {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (m *MemStore) IsNotificationRegistered(ctx context.Context, addrs ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range addrs {
		if m.notifRegs[a] {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) NonReadyTokens(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for t := range m.nonReadyTokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) CountTokenRegistrations(ctx context.Context, contract string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokenRegs[contract]), nil
}

func (m *MemStore) PageTokenRegistrations(ctx context.Context, contract string, offset, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := m.tokenRegs[contract]
	if offset >= len(regs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(regs) {
		end = len(regs)
	}
	out := make([]string, end-offset)
	copy(out, regs[offset:end])
	return out, nil
}

func (m *MemStore) MarkTokensReady(ctx context.Context, contracts []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contracts {
		delete(m.nonReadyTokens, c)
	}
	return nil
}

func (m *MemStore) ClampCollectiblesLastBlock(ctx context.Context, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collectibles > n {
		m.collectibles = n
	}
	return nil
}

func (m *MemStore) FindFilterRegistrations(ctx context.Context, contract, topic string) ([]FilterRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := m.filterRegs[filterRegKey(contract, topic)]
	out := make([]FilterRegistration, len(regs))
	copy(out, regs)
	return out, nil
}

func filterRegKey(contract, topic string) string {
	return contract + ":" + topic
}

// Test helpers, not part of the Store interface.

func (m *MemStore) SeedTx(t TxRecord) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	t.TransactionID = m.nextTxID
	m.txs = append(m.txs, t)
	return t.TransactionID
}

func (m *MemStore) SeedKnownToken(contract string)    { m.knownTokens[contract] = true }
func (m *MemStore) SeedTokenReg(contract, addr string) { m.tokenRegs[contract] = append(m.tokenRegs[contract], addr) }
func (m *MemStore) SeedNotificationReg(addr string)    { m.notifRegs[addr] = true }
func (m *MemStore) SeedNonReadyToken(contract string)  { m.nonReadyTokens[contract] = true }
func (m *MemStore) SeedFilterRegistration(contract, topic, filterID string) {
	key := filterRegKey(contract, topic)
	m.filterRegs[key] = append(m.filterRegs[key], FilterRegistration{FilterID: filterID, Topic: topic})
}
func (m *MemStore) CollectiblesLastBlock() uint64      { return m.collectibles }
func (m *MemStore) SeedCollectiblesLastBlock(n uint64) { m.collectibles = n }
func (m *MemStore) Txs() []TxRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TxRecord, len(m.txs))
	copy(out, m.txs)
	return out
}

func (m *MemStore) Tx(id int64) (TxRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.TransactionID == id {
			return t, true
		}
	}
	return TxRecord{}, false
}
