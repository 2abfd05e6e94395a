package monitor

import "sync"

// taskHandle realizes the "task handle, skip if not done" singleton
// discipline of spec.md §5/§9 with a mutex-guarded running flag: a
// trigger that arrives while the previous run is still in flight is
// simply dropped (logged at debug by the caller).
type taskHandle struct {
	mu      sync.Mutex
	running bool
}

// tryStart reports whether the caller won the right to run; if it
// returns false, a run is already in flight and the caller must skip.
func (h *taskHandle) tryStart() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	return true
}

func (h *taskHandle) finish() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}
