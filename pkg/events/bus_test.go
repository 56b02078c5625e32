package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBus_EmitWithoutSubscribersIsNoOp(t *testing.T) {
	bus := NewBus()

	// Must not panic or create a subject.
	bus.Emit("req-1", EventTypeStatusChange, StatusChangePayload{Status: "OPTIMIZING", Iteration: 1})
	bus.Emit("req-1", EventTypeCompleted, nil)

	assert.Equal(t, 0, bus.SubjectCount())
}

func TestBus_SubscribeReceivesEmittedEvents(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("req-1")
	defer sub.Cancel()

	bus.Emit("req-1", EventTypeStatusChange, StatusChangePayload{Status: "GENERATING", Iteration: 2})

	evt := recvEvent(t, sub.Events)
	assert.Equal(t, EventTypeStatusChange, evt.Type)
	assert.Equal(t, "req-1", evt.RequestID)

	payload, ok := evt.Data.(StatusChangePayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Iteration)

	_, err := time.Parse(time.RFC3339Nano, evt.Timestamp)
	assert.NoError(t, err, "timestamp should be RFC3339Nano")
}

func TestBus_MultipleSubscribersAllReceive(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe("req-1")
	sub2 := bus.Subscribe("req-1")
	defer sub1.Cancel()
	defer sub2.Cancel()

	assert.Equal(t, 2, bus.SubscriberCount("req-1"))
	assert.Equal(t, 1, bus.SubjectCount())

	bus.Emit("req-1", EventTypeIterationComplete, nil)

	evt1 := recvEvent(t, sub1.Events)
	evt2 := recvEvent(t, sub2.Events)
	assert.Equal(t, EventTypeIterationComplete, evt1.Type)
	assert.Equal(t, EventTypeIterationComplete, evt2.Type)
}

func TestBus_EventsIsolatedPerRequest(t *testing.T) {
	bus := NewBus()
	subA := bus.Subscribe("req-a")
	subB := bus.Subscribe("req-b")
	defer subA.Cancel()
	defer subB.Cancel()

	bus.Emit("req-a", EventTypeStatusChange, nil)

	evt := recvEvent(t, subA.Events)
	assert.Equal(t, "req-a", evt.RequestID)

	select {
	case <-subB.Events:
		t.Fatal("subscriber of req-b must not receive req-a events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_CancelRemovesSubscriberAndCleansUpSubject(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe("req-1")
	sub2 := bus.Subscribe("req-1")

	sub1.Cancel()
	requireClosed(t, sub1.Events)
	assert.Equal(t, 1, bus.SubscriberCount("req-1"))

	// Remaining subscriber keeps receiving.
	bus.Emit("req-1", EventTypeStatusChange, nil)
	evt := recvEvent(t, sub2.Events)
	assert.Equal(t, EventTypeStatusChange, evt.Type)

	// Last cancel removes the subject entirely.
	sub2.Cancel()
	assert.Equal(t, 0, bus.SubjectCount())
}

func TestBus_CancelIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("req-1")

	sub.Cancel()
	sub.Cancel() // second call must not panic on the closed channel
	assert.Equal(t, 0, bus.SubscriberCount("req-1"))
}

func TestBus_TerminalEventClosesAllSubscribers(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe("req-1")
	sub2 := bus.Subscribe("req-1")

	bus.Emit("req-1", EventTypeCompleted, CompletedPayload{Reason: "SUCCESS", BestScore: 91.5})

	for _, sub := range []*Subscription{sub1, sub2} {
		evt := recvEvent(t, sub.Events)
		assert.Equal(t, EventTypeCompleted, evt.Type)
		requireClosed(t, sub.Events)
	}
	assert.Equal(t, 0, bus.SubjectCount())

	// Cancel after a terminal close must remain safe.
	sub1.Cancel()
	sub2.Cancel()
}

func TestBus_EmitAfterTerminalIsNoOp(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("req-1")

	bus.Emit("req-1", EventTypeFailed, FailedPayload{Error: "boom"})
	recvEvent(t, sub.Events)
	requireClosed(t, sub.Events)

	// Subject is gone; further emits land nowhere.
	bus.Emit("req-1", EventTypeStatusChange, nil)
	assert.Equal(t, 0, bus.SubjectCount())
}

func TestBus_ResubscribeAfterTerminalCreatesFreshSubject(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("req-1")
	bus.Emit("req-1", EventTypeCompleted, nil)
	recvEvent(t, sub.Events)
	requireClosed(t, sub.Events)

	// A continued request streams again through a brand new subject.
	fresh := bus.Subscribe("req-1")
	defer fresh.Cancel()

	bus.Emit("req-1", EventTypeStatusChange, nil)
	evt := recvEvent(t, fresh.Events)
	assert.Equal(t, EventTypeStatusChange, evt.Type)
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("req-1")
	defer sub.Cancel()

	// Never read: fill the buffer and then some. Emit must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			bus.Emit("req-1", EventTypeStatusChange, StatusChangePayload{Iteration: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestBus_ConcurrentSubscribeEmitCancel(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			requestID := fmt.Sprintf("req-%d", n%3)
			sub := bus.Subscribe(requestID)
			bus.Emit(requestID, EventTypeStatusChange, nil)
			// Drain whatever arrived before cancelling.
			for {
				select {
				case _, ok := <-sub.Events:
					if !ok {
						return
					}
				default:
					sub.Cancel()
					return
				}
			}
		}(i)
	}

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bus.Emit(fmt.Sprintf("req-%d", n), EventTypeCompleted, nil)
		}(i)
	}

	wg.Wait()
}
