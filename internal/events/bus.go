package events

import (
	"log/slog"
	"sync"
	"time"

	"convoy/internal/logging"
	"convoy/internal/queue"
)

// Hooks carries the optional callbacks an observer wants to receive. Any nil
// field is skipped during delivery.
type Hooks struct {
	OnItemAdded     func(item *queue.Item)
	OnItemRemoved   func(item *queue.Item)
	OnItemStarted   func(item *queue.Item)
	OnItemCompleted func(item *queue.Item)
	OnItemFailed    func(item *queue.Item)
	OnItemCancelled func(item *queue.Item)

	OnBatchStarted   func(count int)
	OnBatchPaused    func()
	OnBatchResumed   func()
	OnBatchCompleted func(processed, failed int, elapsed time.Duration)

	OnStatusChanged func(item *queue.Item, previous queue.Status)
}

// Bus fans queue lifecycle events out to registered observers.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Hooks
	logger    *slog.Logger
}

// NewBus returns an empty bus. A nil logger falls back to a no-op logger.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		listeners: make(map[int]Hooks),
		logger:    logging.NewComponentLogger(logger, "events"),
	}
}

// Register adds an observer and returns the id used to unregister it later.
func (b *Bus) Register(hooks Hooks) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = hooks
	return id
}

// Unregister removes the observer with the given id. Unknown ids are ignored.
func (b *Bus) Unregister(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

func (b *Bus) snapshot() []Hooks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hooks := make([]Hooks, 0, len(b.listeners))
	for _, h := range b.listeners {
		hooks = append(hooks, h)
	}
	return hooks
}

// deliver runs one callback behind a recover so a panicking observer cannot
// break dispatch or starve the remaining listeners.
func (b *Bus) deliver(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panicked",
				logging.String(logging.FieldEventType, event),
				logging.Any("panic", r))
		}
	}()
	fn()
}

func (b *Bus) ItemAdded(item *queue.Item) {
	for _, h := range b.snapshot() {
		if h.OnItemAdded != nil {
			b.deliver("item_added", func() { h.OnItemAdded(item) })
		}
	}
}

func (b *Bus) ItemRemoved(item *queue.Item) {
	for _, h := range b.snapshot() {
		if h.OnItemRemoved != nil {
			b.deliver("item_removed", func() { h.OnItemRemoved(item) })
		}
	}
}

func (b *Bus) ItemStarted(item *queue.Item) {
	for _, h := range b.snapshot() {
		if h.OnItemStarted != nil {
			b.deliver("item_started", func() { h.OnItemStarted(item) })
		}
	}
}

func (b *Bus) ItemCompleted(item *queue.Item) {
	for _, h := range b.snapshot() {
		if h.OnItemCompleted != nil {
			b.deliver("item_completed", func() { h.OnItemCompleted(item) })
		}
	}
}

func (b *Bus) ItemFailed(item *queue.Item) {
	for _, h := range b.snapshot() {
		if h.OnItemFailed != nil {
			b.deliver("item_failed", func() { h.OnItemFailed(item) })
		}
	}
}

func (b *Bus) ItemCancelled(item *queue.Item) {
	for _, h := range b.snapshot() {
		if h.OnItemCancelled != nil {
			b.deliver("item_cancelled", func() { h.OnItemCancelled(item) })
		}
	}
}

func (b *Bus) BatchStarted(count int) {
	for _, h := range b.snapshot() {
		if h.OnBatchStarted != nil {
			b.deliver("batch_started", func() { h.OnBatchStarted(count) })
		}
	}
}

func (b *Bus) BatchPaused() {
	for _, h := range b.snapshot() {
		if h.OnBatchPaused != nil {
			b.deliver("batch_paused", func() { h.OnBatchPaused() })
		}
	}
}

func (b *Bus) BatchResumed() {
	for _, h := range b.snapshot() {
		if h.OnBatchResumed != nil {
			b.deliver("batch_resumed", func() { h.OnBatchResumed() })
		}
	}
}

func (b *Bus) BatchCompleted(processed, failed int, elapsed time.Duration) {
	for _, h := range b.snapshot() {
		if h.OnBatchCompleted != nil {
			b.deliver("batch_completed", func() { h.OnBatchCompleted(processed, failed, elapsed) })
		}
	}
}

func (b *Bus) StatusChanged(item *queue.Item, previous queue.Status) {
	for _, h := range b.snapshot() {
		if h.OnStatusChanged != nil {
			b.deliver("status_changed", func() { h.OnStatusChanged(item, previous) })
		}
	}
}
