package monitor

import (
	"context"
	"time"
)

// SanityHeartbeatKey is the key-value key external monitors watch
// for liveness (spec.md §6): absence past its TTL signals degraded
// health.
const SanityHeartbeatKey = "monitor_sanity_check_ok"

const sanityHeartbeatTTL = 20 * time.Second

// runSanityLoop is the sanity supervisor (C10): an independent
// watchdog over the pending-tx filter and recent block progress
// (spec.md §4.10). It re-registers a missing filter; it does not
// inspect or restart the filter-poll loop's schedule.
func (m *Monitor) runSanityLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SanityCallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.sanityStep(ctx)
		}
	}
}

func (m *Monitor) sanityStep(ctx context.Context) {
	if !m.sanityTask.tryStart() {
		return
	}
	defer m.sanityTask.finish()

	ok := true

	if m.getFilterID() == "" {
		if err := m.registerFilter(ctx); err != nil {
			ok = false
		}
	}

	if since := time.Since(m.getLastSawNewBlock()); since > m.cfg.NewBlockTimeout {
		logger.Error("sanity: no new block observed within timeout", "since", since)
		ok = false
	}

	if m.metrics != nil {
		if ok {
			m.metrics.SanityOK.Set(1)
		} else {
			m.metrics.SanityOK.Set(0)
		}
	}

	if ok {
		if err := m.pending.WriteHeartbeat(ctx, SanityHeartbeatKey, sanityHeartbeatTTL); err != nil {
			logger.Error("sanity: failed to write heartbeat", "err", err)
		}
	}
}
