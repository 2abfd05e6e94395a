// Package monitor is the block monitor's state machine: the
// filter-poll loop (C4), block-check loop (C5), pending-tx processor
// (C6), transaction classifier (C7), token-readiness reconciler (C8),
// reorg handler (C9), and sanity supervisor (C10) described in
// spec.md §4 / SPEC_FULL.md §4.
package monitor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/ethmonitor/internal/dispatch"
	"github.com/luxfi/ethmonitor/internal/metrics"
	"github.com/luxfi/ethmonitor/internal/pending"
	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
	"github.com/luxfi/ethmonitor/log"
)

var logger = log.New("component", "monitor")

// Config is the subset of runtime configuration the Monitor itself
// needs, independent of how it was loaded (cmd/monitor copies the
// matching fields of internal/config.Config into it; kept separate so
// monitor has no import dependency on viper).
type Config struct {
	DefaultPollDelay time.Duration
	FilterTimeout    time.Duration
	SanityCallback   time.Duration
	NewBlockTimeout  time.Duration
	PendingTxExpiry  time.Duration
	ReorgBatch       int
	ReorgMaxDepth    int

	TransferTopic   string
	DepositTopic    string
	WithdrawalTopic string
	WETHContract    string
}

// Monitor owns every loop and the state they coordinate through.
type Monitor struct {
	cfg    Config
	topics Topics

	rpc     *rpcclient.Pair
	store   store.Store
	pending pending.Tracker
	bus     dispatch.Bus
	metrics *metrics.Metrics

	// C4 state. filterID is written by both the filter-poll loop and
	// the sanity supervisor (C10 re-registers it too), so it and its
	// backoff bookkeeping are guarded by filterMu rather than confined
	// to a single goroutine.
	filterMu         sync.Mutex
	filterID         string
	lastSawPendingAt time.Time
	filterBackoff    time.Duration
	filterRetryAt    time.Time

	// C5 state. lastBlockNumber is written by the block-check loop
	// (including the reorg handler it calls inline) and read by the
	// filter-poll loop's opportunistic trigger, so it's guarded rather
	// than confined to one goroutine.
	lastBlockNumberMu sync.Mutex
	lastBlockNumber   uint64
	lastSawNewBlock   time.Time
	blockTimes        []time.Duration
	blockTimesMu      sync.Mutex
	lastGasPrice      *big.Int
	lastGasPriceMu    sync.Mutex

	filterTask  taskHandle
	blockTask   taskHandle
	pendingTask taskHandle
	sanityTask  taskHandle

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Monitor ready to Start. last-known high-water mark
// is loaded from store by the caller via Bootstrap.
func New(cfg Config, rpc *rpcclient.Pair, st store.Store, pt pending.Tracker, bus dispatch.Bus, m *metrics.Metrics) *Monitor {
	return &Monitor{
		cfg:              cfg,
		topics:           ResolveTopics(cfg.TransferTopic, cfg.DepositTopic, cfg.WithdrawalTopic, cfg.WETHContract),
		rpc:              rpc,
		store:            st,
		pending:          pt,
		bus:              bus,
		metrics:          m,
		lastSawPendingAt: time.Now(),
		lastSawNewBlock:  time.Now(),
		done:             make(chan struct{}),
	}
}

// Bootstrap determines the starting high-water mark: the highest
// non-stale block row, falling back to last_blocknumber, falling back
// to the node's current height (spec.md's _initialise).
func (m *Monitor) Bootstrap(ctx context.Context) error {
	if rec, err := m.store.LatestNonStaleBlock(ctx); err != nil {
		return err
	} else if rec != nil {
		m.setLastBlockNumber(rec.Number)
		return nil
	}
	if n, ok, err := m.store.HighWaterMark(ctx); err != nil {
		return err
	} else if ok {
		m.setLastBlockNumber(n)
		return nil
	}
	n, err := m.rpc.Query.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if err := m.store.InitHighWaterMark(ctx, n); err != nil {
		return err
	}
	m.setLastBlockNumber(n)
	return nil
}

// Start registers the pending-transaction filter and schedules the
// filter-poll and sanity loops. It does not block.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.registerFilter(ctx); err != nil {
		logger.Warn("initial filter registration failed, sanity supervisor will retry", "err", err)
	}

	m.wg.Add(2)
	go m.runFilterPollLoop(ctx)
	go m.runSanityLoop(ctx)
	return nil
}

// Shutdown sets the cancellation signal, cancels pending scheduled
// callbacks, and awaits every in-flight task handle to completion —
// no forced termination (spec.md §5).
func (m *Monitor) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	close(m.done)
	m.wg.Wait()
	m.rpc.Close()
}

// GasPriceSuggestion returns the last sampled gas price (SPEC_FULL.md
// §4.12), for the out-of-scope HTTP layer to read synchronously.
func (m *Monitor) GasPriceSuggestion() (*big.Int, bool) {
	m.lastGasPriceMu.Lock()
	defer m.lastGasPriceMu.Unlock()
	if m.lastGasPrice == nil {
		return nil, false
	}
	return new(big.Int).Set(m.lastGasPrice), true
}

func (m *Monitor) getFilterID() string {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	return m.filterID
}

func (m *Monitor) getLastSawPendingAt() time.Time {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	return m.lastSawPendingAt
}

func (m *Monitor) setLastSawPendingAt(t time.Time) {
	m.filterMu.Lock()
	m.lastSawPendingAt = t
	m.filterMu.Unlock()
}

func (m *Monitor) getLastBlockNumber() uint64 {
	m.lastBlockNumberMu.Lock()
	defer m.lastBlockNumberMu.Unlock()
	return m.lastBlockNumber
}

func (m *Monitor) setLastBlockNumber(n uint64) {
	m.lastBlockNumberMu.Lock()
	m.lastBlockNumber = n
	m.lastBlockNumberMu.Unlock()
}

func (m *Monitor) getLastSawNewBlock() time.Time {
	m.lastBlockNumberMu.Lock()
	defer m.lastBlockNumberMu.Unlock()
	return m.lastSawNewBlock
}

func (m *Monitor) setLastSawNewBlock(t time.Time) {
	m.lastBlockNumberMu.Lock()
	m.lastSawNewBlock = t
	m.lastBlockNumberMu.Unlock()
}

func (m *Monitor) recordGasPrice(v *big.Int) {
	m.lastGasPriceMu.Lock()
	m.lastGasPrice = v
	m.lastGasPriceMu.Unlock()
}

// recordBlockTime keeps a rolling window of 100 samples (spec.md §4.5
// step 11).
func (m *Monitor) recordBlockTime(d time.Duration) {
	m.blockTimesMu.Lock()
	defer m.blockTimesMu.Unlock()
	m.blockTimes = append(m.blockTimes, d)
	if len(m.blockTimes) > 100 {
		m.blockTimes = m.blockTimes[len(m.blockTimes)-100:]
	}
}
