package monitor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
)

// runPendingCheck is the pending-tx processor (C6): snapshots the
// tracker and resolves each hash against the node (spec.md §4.6).
func (m *Monitor) runPendingCheck(ctx context.Context) {
	if !m.pendingTask.tryStart() {
		logger.Debug("pending-tx check already running, skipping trigger")
		return
	}
	defer m.pendingTask.finish()

	snapshot, err := m.pending.Snapshot(ctx)
	if err != nil {
		logger.Error("pending-tx check: failed to snapshot tracker", "err", err)
		return
	}
	if m.metrics != nil {
		m.metrics.PendingTxGauge.Set(float64(len(snapshot)))
	}

	now := time.Now()
	for hash, firstSeen := range snapshot {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.pendingCheckOne(ctx, hash, firstSeen, now)
	}
}

// pendingCheckOne resolves one tracked hash. Returns false only when
// the node lookup failed; otherwise true, whether the entry was
// evicted, left to age, removed as already mined, or handed off to
// the classifier.
func (m *Monitor) pendingCheckOne(ctx context.Context, hash string, firstSeen, now time.Time) bool {
	tx, err := m.rpc.Query.GetTransactionByHash(ctx, common.HexToHash(hash))
	if rpcclient.IsTransient(err) {
		logger.Warn("pending-tx check: transient error resolving hash, will retry", "hash", hash, "err", err)
		return false
	}
	if err != nil {
		logger.Error("pending-tx check: unexpected error resolving hash", "hash", hash, "err", err)
		return false
	}

	if tx == nil {
		if now.Sub(firstSeen) >= m.cfg.PendingTxExpiry {
			if err := m.pending.Remove(ctx, hash); err != nil {
				logger.Error("pending-tx check: failed to evict expired entry", "hash", hash, "err", err)
			}
		}
		return true
	}

	if err := m.pending.Remove(ctx, hash); err != nil {
		logger.Error("pending-tx check: failed to remove resolved entry", "hash", hash, "err", err)
	}
	if _, ok := tx.BlockNumberU64(); ok {
		// Already included in a block; the block-check loop owns it.
		return true
	}
	if _, err := m.classify(ctx, tx, false); err != nil {
		logger.Error("pending-tx check: classification failed", "hash", hash, "err", err)
	}
	return true
}
