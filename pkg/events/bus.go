package events

import (
	"log/slog"
	"sync"
	"time"
)

// subscriberBuffer bounds how far a slow subscriber can fall behind before
// events are dropped for that subscriber.
const subscriberBuffer = 32

// subject is the broadcast state for one request.
type subject struct {
	nextID      int
	subscribers map[int]chan Event
}

// Bus fans events out to per-request subscribers. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	subjects map[string]*subject
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subjects: make(map[string]*subject),
	}
}

// Subscription is a live event stream for one request. The Events channel
// is closed when the request reaches a terminal state or Cancel is called.
type Subscription struct {
	Events <-chan Event

	once   sync.Once
	cancel func()
}

// Cancel detaches the subscription and closes its Events channel.
// Safe to call multiple times, including after the stream has completed.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Subscribe attaches a new subscriber to the request's event stream,
// creating the subject if this is the first subscriber. Subscribing to a
// request that already finished yields a fresh subject; the caller is
// expected to send initial state from a DB snapshot, which for a terminal
// request is all the history there is.
func (b *Bus) Subscribe(requestID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	subj, ok := b.subjects[requestID]
	if !ok {
		subj = &subject{subscribers: make(map[int]chan Event)}
		b.subjects[requestID] = subj
	}

	id := subj.nextID
	subj.nextID++

	ch := make(chan Event, subscriberBuffer)
	subj.subscribers[id] = ch

	return &Subscription{
		Events: ch,
		cancel: func() { b.unsubscribe(requestID, id) },
	}
}

// unsubscribe removes one subscriber and drops the subject when it was the
// last one. A no-op if the subject was already removed by a terminal emit.
func (b *Bus) unsubscribe(requestID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subj, ok := b.subjects[requestID]
	if !ok {
		return
	}
	ch, ok := subj.subscribers[id]
	if !ok {
		return
	}
	delete(subj.subscribers, id)
	close(ch)

	if len(subj.subscribers) == 0 {
		delete(b.subjects, requestID)
	}
}

// Emit broadcasts an event to every subscriber of the request. Without
// subscribers it is a no-op. A terminal event (completed or failed) is
// delivered, then every subscriber channel is closed and the subject
// removed; later emits for the same request ID are no-ops until someone
// subscribes again.
//
// Delivery is non-blocking: a subscriber whose buffer is full loses the
// event. Terminal events always fit because closing follows immediately,
// so a dropped terminal event can only mean the subscriber was already
// more than a full buffer behind.
func (b *Bus) Emit(requestID, eventType string, data any) {
	evt := Event{
		Type:      eventType,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if IsTerminal(eventType) {
		b.emitTerminal(requestID, evt)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	subj, ok := b.subjects[requestID]
	if !ok {
		return
	}
	for id, ch := range subj.subscribers {
		select {
		case ch <- evt:
		default:
			slog.Warn("Dropping event for slow subscriber",
				"request_id", requestID,
				"event_type", eventType,
				"subscriber_id", id)
		}
	}
}

// emitTerminal delivers the final event, closes all subscriber channels
// and removes the subject.
func (b *Bus) emitTerminal(requestID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subj, ok := b.subjects[requestID]
	if !ok {
		return
	}
	for id, ch := range subj.subscribers {
		select {
		case ch <- evt:
		default:
			slog.Warn("Dropping terminal event for slow subscriber",
				"request_id", requestID,
				"event_type", evt.Type,
				"subscriber_id", id)
		}
		close(ch)
	}
	delete(b.subjects, requestID)
}

// SubscriberCount returns the number of active subscribers for a request.
func (b *Bus) SubscriberCount(requestID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subj, ok := b.subjects[requestID]
	if !ok {
		return 0
	}
	return len(subj.subscribers)
}

// SubjectCount returns the number of requests with at least one subscriber.
func (b *Bus) SubjectCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subjects)
}
