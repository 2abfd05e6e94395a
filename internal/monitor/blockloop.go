package monitor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
)

// runBlockCheck is the block-check loop (C5). It repeats until the
// node reports no block at last_block_number+1 (spec.md §4.5).
func (m *Monitor) runBlockCheck(ctx context.Context) {
	if !m.blockTask.tryStart() {
		logger.Debug("block-check already running, skipping trigger")
		return
	}
	defer m.blockTask.finish()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !m.blockCheckStep(ctx) {
			return
		}
	}
}

// blockCheckStep runs one iteration of §4.5 and reports whether the
// loop should continue (a block was processed or a reorg/gap was
// handled) or stop (no next block, or a transient error).
func (m *Monitor) blockCheckStep(ctx context.Context) bool {
	start := time.Now()
	last := m.getLastBlockNumber()
	next := last + 1

	block, err := m.rpc.Query.GetBlockByNumber(ctx, next, true)
	if rpcclient.IsTransient(err) {
		logger.Warn("block-check: transient error fetching block, will retry next tick", "number", next, "err", err)
		return false
	}
	if err != nil {
		logger.Error("block-check: unexpected error fetching block", "number", next, "err", err)
		return false
	}
	if block == nil {
		return false
	}

	m.bus.UpdateDefaultGasPrice(ctx, next)
	if len(block.Transactions) > 0 && block.Transactions[0].GasPrice != nil {
		// first tx's gas price is as good a sample as any; a real
		// gas-price oracle would use a percentile over the block.
		m.recordGasPrice(block.Transactions[0].GasPrice.ToInt())
	}

	// Gap detection.
	if row, err := m.store.BlockAt(ctx, last); err != nil {
		logger.Error("block-check: failed to read store row for gap check", "number", last, "err", err)
		return false
	} else if row == nil {
		if below, ok, err := m.store.HighestBlockBelow(ctx, last); err != nil {
			logger.Error("block-check: failed to find highest block below gap", "err", err)
			return false
		} else if ok {
			logger.Warn("block-check: gap detected, rewinding high-water mark", "from", last, "to", below)
			m.setLastBlockNumber(below)
			return true
		}
	} else if row.Hash != block.ParentHash {
		logger.Warn("block-check: parent-hash mismatch, invoking reorg handler", "number", last, "stored_hash", row.Hash, "node_parent_hash", block.ParentHash)
		if m.handleReorg(ctx) {
			return true
		}
		// Permissive fall-through: keep ingesting despite the known
		// inconsistency; the sanity heartbeat reports the condition.
	}

	existingNext, err := m.store.BlockAt(ctx, next)
	if err != nil {
		logger.Error("block-check: failed duplicate-block check", "number", next, "err", err)
		return false
	}
	dup := existingNext != nil

	var logs []rpcclient.Log
	if !block.EmptyLogsBloom() {
		logs, err = m.rpc.Query.GetLogs(ctx, block.NumberU64(), block.NumberU64())
		if rpcclient.IsTransient(err) {
			logger.Warn("block-check: transient error fetching logs, will retry next tick", "number", next, "err", err)
			return false
		}
		if err != nil {
			logger.Error("block-check: unexpected error fetching logs", "number", next, "err", err)
			return false
		}
	}
	logsByTx := make(map[string][]rpcclient.Log, len(logs))
	for _, lg := range logs {
		k := lg.TxHash.Hex()
		logsByTx[k] = append(logsByTx[k], lg)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		tx.Logs = logsByTx[tx.Hash.Hex()]
		g.Go(func() error {
			classifyStart := time.Now()
			_, err := m.classify(gctx, tx, dup)
			if m.metrics != nil {
				m.metrics.ClassifyDuration.Observe(time.Since(classifyStart).Seconds())
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("block-check: per-transaction classification failed", "number", next, "err", err)
	}

	m.emitFilterNotifications(ctx, logs)

	if err := m.store.BumpHighWater(ctx, next); err != nil {
		logger.Error("block-check: failed to bump high-water mark", "number", next, "err", err)
	}
	if err := m.store.UpsertBlock(ctx, store.BlockRecord{
		Number:     next,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		Timestamp:  int64(block.Timestamp),
	}); err != nil {
		logger.Error("block-check: failed to upsert block row", "number", next, "err", err)
	}

	m.setLastBlockNumber(next)
	m.setLastSawNewBlock(time.Now())
	m.bus.NotifyNewBlock(ctx, next)
	m.recordBlockTime(time.Since(start))
	if m.metrics != nil {
		m.metrics.BlocksProcessed.Inc()
	}
	return true
}

// emitFilterNotifications implements §4.5 step 9: for every log and
// every topic on it, look up subscriber filter registrations on that
// (contract_address, topic_id) pair and emit a dispatch for each hit,
// using the registration's own filter_id and topic rather than the
// pending-transaction node filter handle this monitor holds internally
// (original_source/toshieth/monitor.py:248-254).
func (m *Monitor) emitFilterNotifications(ctx context.Context, logs []rpcclient.Log) {
	for _, lg := range logs {
		contract := lowerHexAddr(lg.Address.Bytes())
		for _, topic := range lg.Topics {
			regs, err := m.store.FindFilterRegistrations(ctx, contract, topic.Hex())
			if err != nil {
				logger.Error("block-check: failed to look up filter registrations", "contract", contract, "topic", topic, "err", err)
				continue
			}
			for _, reg := range regs {
				m.bus.SendFilterNotification(ctx, reg.FilterID, reg.Topic, hexString(lg.Data))
			}
		}
	}
}
