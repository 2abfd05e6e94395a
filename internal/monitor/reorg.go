package monitor

import (
	"context"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
)

// handleReorg is the reorg handler (C9): walks backward in batches
// comparing node vs store hashes, marks the fork point, and rewinds
// the high-water mark (spec.md §4.9).
func (m *Monitor) handleReorg(ctx context.Context) bool {
	last := m.getLastBlockNumber()
	b := last
	batch := uint64(m.cfg.ReorgBatch)
	if batch == 0 {
		batch = 10
	}
	maxDepth := uint64(m.cfg.ReorgMaxDepth)
	if maxDepth == 0 {
		maxDepth = 1000
	}

	for b > 0 && last-b <= maxDepth {
		numbers := make([]uint64, 0, batch)
		for i := uint64(0); i < batch && b > i; i++ {
			numbers = append(numbers, b-i)
		}
		if len(numbers) == 0 {
			break
		}

		nodeBlocks, err := m.rpc.Query.BulkGetBlocksByNumber(ctx, numbers, false)
		if err != nil {
			logger.Error("reorg walk: bulk fetch failed", "err", err)
			return false
		}

		if forkAt, ok, err := m.findForkPoint(ctx, numbers, nodeBlocks); err != nil {
			logger.Error("reorg walk: store comparison failed", "err", err)
			return false
		} else if ok {
			return m.applyFork(ctx, forkAt)
		}

		if b < batch {
			break
		}
		b -= batch
	}

	logger.Error("reorg fork point not found within max depth", "last_block_number", last, "walked_to", b)
	return false
}

// findForkPoint pairwise-compares a batch of node blocks against the
// corresponding store rows, returning the highest block number where
// hashes still agree (spec.md §4.9 step 3).
func (m *Monitor) findForkPoint(ctx context.Context, numbers []uint64, nodeBlocks []*rpcclient.Block) (uint64, bool, error) {
	for i, n := range numbers {
		nb := nodeBlocks[i]
		if nb == nil {
			logger.Error("reorg walk: node returned no block", "number", n)
			continue
		}
		row, err := m.store.BlockAt(ctx, n)
		if err != nil {
			return 0, false, err
		}
		if row == nil {
			logger.Error("reorg walk: no store row for block, out of order", "number", n)
			continue
		}
		if row.Hash == nb.Hash {
			return n, true, nil
		}
		logger.Warn("reorg walk: hash mismatch, continuing backward", "number", n, "node_hash", nb.Hash, "store_hash", row.Hash)
	}
	return 0, false, nil
}

// applyFork marks everything above fork stale, clamps collectibles,
// and rewinds the high-water mark (spec.md §4.9 final step).
func (m *Monitor) applyFork(ctx context.Context, fork uint64) bool {
	if err := m.store.MarkStaleAbove(ctx, fork); err != nil {
		logger.Error("reorg: failed to mark blocks stale", "fork", fork, "err", err)
		return false
	}
	if fork > 0 {
		if err := m.store.ClampCollectiblesLastBlock(ctx, fork-1); err != nil {
			logger.Error("reorg: failed to clamp collectibles last_block", "fork", fork, "err", err)
			return false
		}
	}
	if err := m.store.SetHighWater(ctx, fork); err != nil {
		logger.Error("reorg: failed to rewind high-water mark", "fork", fork, "err", err)
		return false
	}
	depth := m.getLastBlockNumber() - fork
	m.setLastBlockNumber(fork)
	if m.metrics != nil {
		m.metrics.ReorgsDetected.Inc()
		m.metrics.ReorgDepth.Observe(float64(depth))
	}
	logger.Warn("reorg resolved", "fork_block", fork, "depth", depth)
	return true
}
