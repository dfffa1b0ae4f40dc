package events_test

import (
	"testing"
	"time"

	"convoy/internal/events"
	"convoy/internal/queue"
)

func TestBusDeliversToAllObservers(t *testing.T) {
	bus := events.NewBus(nil)

	var first, second []int64
	bus.Register(events.Hooks{
		OnItemStarted: func(item *queue.Item) { first = append(first, item.ID) },
	})
	bus.Register(events.Hooks{
		OnItemStarted: func(item *queue.Item) { second = append(second, item.ID) },
	})

	bus.ItemStarted(&queue.Item{ID: 7})

	if len(first) != 1 || first[0] != 7 {
		t.Fatalf("first observer missed delivery: %v", first)
	}
	if len(second) != 1 || second[0] != 7 {
		t.Fatalf("second observer missed delivery: %v", second)
	}
}

func TestBusSkipsNilCallbacks(t *testing.T) {
	bus := events.NewBus(nil)

	var completed int
	bus.Register(events.Hooks{
		OnItemCompleted: func(item *queue.Item) { completed++ },
	})

	// No OnItemStarted registered anywhere; must not panic.
	bus.ItemStarted(&queue.Item{ID: 1})
	bus.ItemCompleted(&queue.Item{ID: 1})

	if completed != 1 {
		t.Fatalf("expected 1 completion callback, got %d", completed)
	}
}

func TestBusIsolatesPanickingObserver(t *testing.T) {
	bus := events.NewBus(nil)

	bus.Register(events.Hooks{
		OnItemFailed: func(item *queue.Item) { panic("observer bug") },
	})
	var delivered bool
	bus.Register(events.Hooks{
		OnItemFailed: func(item *queue.Item) { delivered = true },
	})

	bus.ItemFailed(&queue.Item{ID: 3})

	if !delivered {
		t.Fatal("panicking observer must not block the others")
	}
}

func TestBusUnregisterStopsDelivery(t *testing.T) {
	bus := events.NewBus(nil)

	var count int
	id := bus.Register(events.Hooks{
		OnBatchStarted: func(n int) { count += n },
	})

	bus.BatchStarted(2)
	bus.Unregister(id)
	bus.BatchStarted(5)

	if count != 2 {
		t.Fatalf("expected no delivery after unregister, got %d", count)
	}
}

func TestBusBatchLifecycle(t *testing.T) {
	bus := events.NewBus(nil)

	var seen []string
	bus.Register(batchRecorder(&seen))

	bus.BatchStarted(3)
	bus.BatchPaused()
	bus.BatchResumed()
	bus.BatchCompleted(2, 1, time.Second)

	want := []string{"started", "paused", "resumed", "completed"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func batchRecorder(sink *[]string) events.Hooks {
	return events.Hooks{
		OnBatchStarted:   func(int) { *sink = append(*sink, "started") },
		OnBatchPaused:    func() { *sink = append(*sink, "paused") },
		OnBatchResumed:   func() { *sink = append(*sink, "resumed") },
		OnBatchCompleted: func(int, int, time.Duration) { *sink = append(*sink, "completed") },
	}
}
