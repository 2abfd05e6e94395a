package monitor

import "context"

const tokenRegistrationPageSize = 1000

// reconcileTokens is the token-readiness reconciler (C8), run as step
// 1 of every filter-poll tick (spec.md §4.8). Idempotent under crash:
// a partial run simply repeats until every non-ready token is marked
// ready.
func (m *Monitor) reconcileTokens(ctx context.Context) {
	contracts, err := m.store.NonReadyTokens(ctx)
	if err != nil {
		logger.Error("token reconciler: failed to list non-ready tokens", "err", err)
		return
	}
	if len(contracts) == 0 {
		return
	}

	for _, contract := range contracts {
		total, err := m.store.CountTokenRegistrations(ctx, contract)
		if err != nil {
			logger.Error("token reconciler: failed to count registrations", "contract", contract, "err", err)
			continue
		}
		ok := true
		for offset := 0; offset < total; offset += tokenRegistrationPageSize {
			addrs, err := m.store.PageTokenRegistrations(ctx, contract, offset, tokenRegistrationPageSize)
			if err != nil {
				logger.Error("token reconciler: failed to page registrations", "contract", contract, "offset", offset, "err", err)
				ok = false
				break
			}
			if len(addrs) == 0 {
				continue
			}
			m.bus.UpdateTokenCache(ctx, contract, addrs)
		}
		if !ok {
			continue
		}
		if err := m.store.MarkTokensReady(ctx, []string{contract}); err != nil {
			logger.Error("token reconciler: failed to mark token ready", "contract", contract, "err", err)
		}
	}
}
