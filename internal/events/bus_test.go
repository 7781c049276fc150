package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventTaskStarted)

	bus.Publish(NewTypedEvent(SourceEngine, TaskStartedPayload{TaskID: "1.1", Document: "tasks.md"}))
	bus.Publish(NewTypedEvent(SourceLock, LockAcquiredPayload{Resource: "tasks.md", HolderID: "h1"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventTaskStarted {
		t.Errorf("expected task.started, got %s", received[0].Type)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent(SourceEngine, TaskStartedPayload{TaskID: "1.1"}))
	bus.Publish(NewTypedEvent(SourceEngine, TaskCompletedPayload{TaskID: "1.1"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestBusPreservesPublishOrder(t *testing.T) {
	bus := NewBus(64)

	var mu sync.Mutex
	var order []EventType

	bus.Subscribe(func(e Event) {
		mu.Lock()
		order = append(order, e.Type)
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent(SourceLock, LockAcquiredPayload{Resource: "a"}))
	bus.Publish(NewTypedEvent(SourceEngine, TaskStartedPayload{TaskID: "1.1"}))
	bus.Publish(NewTypedEvent(SourceEngine, TaskCompletedPayload{TaskID: "1.1"}))
	bus.Publish(NewTypedEvent(SourceLock, LockReleasedPayload{Resource: "a"}))

	// Close drains the channel and waits for the dispatch goroutine.
	bus.Close()

	mu.Lock()
	defer mu.Unlock()

	want := []EventType{EventLockAcquired, EventTaskStarted, EventTaskCompleted, EventLockReleased}
	if len(order) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(order))
	}
	for i, typ := range want {
		if order[i] != typ {
			t.Errorf("event %d: expected %s, got %s", i, typ, order[i])
		}
	}
}

func TestBusHistory(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	for i := 0; i < 4; i++ {
		bus.Publish(NewTypedEvent(SourceEngine, CycleStartedPayload{Document: "tasks.md", Pending: i}))
	}

	time.Sleep(50 * time.Millisecond)

	history := bus.History(2)
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Add(NewTypedEvent(SourceEngine, CycleStartedPayload{Pending: i}))
	}

	events := rb.Get(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestNewBusClampsNonPositiveBufferSize(t *testing.T) {
	bus := NewBus(-1)
	defer bus.Close()

	// Dispatch runs Add against the ring buffer; a zero or negative size
	// would panic there.
	bus.Publish(NewTypedEvent(SourceEngine, TaskStartedPayload{TaskID: "1.1"}))
	time.Sleep(50 * time.Millisecond)

	if got := bus.History(1); len(got) != 1 {
		t.Fatalf("expected 1 event in history, got %d", len(got))
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(4)
	bus.Close()

	// Must not panic or block.
	bus.Publish(NewTypedEvent(SourceEngine, TaskStartedPayload{TaskID: "1.1"}))
}
