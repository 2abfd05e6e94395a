package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
)

// errFilterBackoff is returned by registerFilter when a prior failure's
// backoff window hasn't elapsed yet, so callers don't hammer the node
// with a registration attempt on every poll tick.
var errFilterBackoff = errors.New("filter registration backing off")

// runFilterPollLoop is the filter-poll loop (C4). It reschedules
// itself until ctx is cancelled (spec.md §4.4).
func (m *Monitor) runFilterPollLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		default:
		}

		delay := m.filterPollStep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-time.After(delay):
		}
	}
}

// filterPollStep runs one tick and returns the delay until the next
// one (spec.md §4.4 steps 1-4).
func (m *Monitor) filterPollStep(ctx context.Context) time.Duration {
	if !m.filterTask.tryStart() {
		logger.Debug("filter-poll already running, skipping tick")
		return m.cfg.DefaultPollDelay
	}
	defer m.filterTask.finish()

	m.reconcileTokens(ctx)

	hasPending := m.drainFilter(ctx)

	if n, err := m.rpc.Query.BlockNumber(ctx); err == nil {
		if n > m.getLastBlockNumber() {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.runBlockCheck(ctx)
			}()
		}
	} else if !rpcclient.IsTransient(err) {
		logger.Error("filter-poll: unexpected error fetching block number", "err", err)
	}

	if hasPending {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runPendingCheck(ctx)
		}()
	}

	if hasPending {
		return time.Second
	}
	if delay, waiting := m.filterBackoffRemaining(); waiting {
		return delay
	}
	return m.cfg.DefaultPollDelay
}

// filterBackoffRemaining reports how much longer the next filter
// registration attempt must wait, per §4.4-A's backoff, so the poll
// loop's reschedule delay actually reflects it instead of retrying on
// the next 1s/DefaultPollDelay tick regardless.
func (m *Monitor) filterBackoffRemaining() (time.Duration, bool) {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	if m.filterID != "" {
		return 0, false
	}
	remaining := time.Until(m.filterRetryAt)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// drainFilter implements §4.4 step 2: drains the pending-tx filter,
// re-registering it on death, and returns whether the tracker holds
// any pending hashes.
func (m *Monitor) drainFilter(ctx context.Context) bool {
	if m.getFilterID() == "" {
		m.registerFilter(ctx)
	} else {
		hashes, err := m.rpc.Filter.GetFilterChanges(ctx, m.getFilterID())
		if rpcclient.IsTransient(err) {
			hashes = nil
		} else if err != nil {
			logger.Error("filter-poll: unexpected error draining filter", "err", err)
			hashes = nil
		}

		switch {
		case hashes == nil:
			m.registerFilter(ctx)
		case len(hashes) > 0:
			now := time.Now()
			for _, h := range hashes {
				if _, err := m.pending.AddIfAbsent(ctx, h.Hex(), now); err != nil {
					logger.Error("filter-poll: failed to record pending hash", "hash", h, "err", err)
				}
			}
			m.setLastSawPendingAt(now)
		default:
			if time.Since(m.getLastSawPendingAt()) > m.cfg.FilterTimeout {
				m.registerFilter(ctx)
			}
		}
	}

	size, err := m.pending.Size(ctx)
	if err != nil {
		logger.Error("filter-poll: failed to read pending tracker size", "err", err)
		return false
	}
	return size > 0
}

// registerFilter is §4.4-A: re-registers the pending-transaction
// filter under linear backoff capped at 10s. A failed attempt sets
// filterRetryAt so the next call — whether from the poll loop, the
// sanity supervisor, or Start — actually waits out the backoff
// instead of retrying on the very next tick.
func (m *Monitor) registerFilter(ctx context.Context) error {
	m.filterMu.Lock()
	if now := time.Now(); now.Before(m.filterRetryAt) {
		m.filterMu.Unlock()
		return errFilterBackoff
	}
	nextBackoff := m.filterBackoff
	if nextBackoff == 0 {
		nextBackoff = time.Second
	} else if nextBackoff < 10*time.Second {
		nextBackoff += time.Second
	}
	m.filterMu.Unlock()

	id, err := m.rpc.Filter.NewPendingTransactionFilter(ctx)

	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	if err != nil {
		m.filterBackoff = nextBackoff
		m.filterRetryAt = time.Now().Add(nextBackoff)
		logger.Warn("filter-poll: failed to register pending-tx filter, backing off", "backoff", nextBackoff, "err", err)
		return err
	}
	m.filterID = id
	m.lastSawPendingAt = time.Now()
	m.filterBackoff = 0
	m.filterRetryAt = time.Time{}
	if m.metrics != nil {
		m.metrics.FilterReregisters.Inc()
	}
	return nil
}
