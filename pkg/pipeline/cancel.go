package pipeline

import "sync"

// CancelRegistry is the process-wide set of request ids flagged for
// cancellation. API handlers add ids; the executor polls at iteration
// boundaries and before each long-running phase. Entries are removed once
// the run observes the flag and persists the terminal state.
type CancelRegistry struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{ids: make(map[string]struct{})}
}

// Add flags a request for cooperative cancellation.
func (r *CancelRegistry) Add(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[requestID] = struct{}{}
}

// IsCancelled reports whether the request has been flagged.
func (r *CancelRegistry) IsCancelled(requestID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[requestID]
	return ok
}

// Remove clears the flag after the cancellation has been acted on.
func (r *CancelRegistry) Remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, requestID)
}
