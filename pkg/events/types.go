// Package events provides per-request event fan-out for live progress
// streaming.
//
// Each request with at least one subscriber has a subject: a broadcast
// channel plus a subscriber ref count. Subjects are created lazily on first
// subscribe and removed when the last subscriber leaves or a terminal event
// is emitted. Emitting to a request nobody watches is a no-op, so the
// pipeline publishes unconditionally and pays nothing when no client is
// connected.
//
// Event flow for one request:
//
//	initial_state      (sent by the subscribe handler from a DB snapshot)
//	status_change      (OPTIMIZING → GENERATING → EVALUATING, per iteration)
//	iteration_complete (after each committed iteration)
//	completed | failed (exactly one, closes every subscriber stream)
//
// The initial_state event is not routed through the bus: the subscribe
// handler emits it synchronously from a fresh snapshot after subscribing,
// so a late subscriber sees current state first and live events after,
// without a gap.
package events

// Event types, as they appear on the wire.
const (
	EventTypeInitialState      = "initial_state"
	EventTypeStatusChange      = "status_change"
	EventTypeIterationComplete = "iteration_complete"
	EventTypeCompleted         = "completed"
	EventTypeFailed            = "failed"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

// IsTerminal reports whether the event type ends the stream.
func IsTerminal(eventType string) bool {
	return eventType == EventTypeCompleted || eventType == EventTypeFailed
}
