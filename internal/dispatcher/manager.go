package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"convoy/internal/config"
	"convoy/internal/events"
	"convoy/internal/logging"
	"convoy/internal/pipeline"
	"convoy/internal/queue"
	"convoy/internal/services"
)

// ItemProcessor runs one claimed item to a terminal state. Satisfied by
// pipeline.Runner; tests substitute doubles.
type ItemProcessor interface {
	Process(ctx context.Context, item *queue.Item) pipeline.ItemResult
}

// Manager coordinates queue draining under a concurrency bound.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	processor ItemProcessor
	bus       *events.Bus
	logger    *slog.Logger

	permits  *permitPool
	errRetry time.Duration

	mu      sync.Mutex
	current *Run
	paused  bool
	resume  chan struct{}
}

// NewManager constructs a dispatcher from its collaborators.
func NewManager(cfg *config.Config, store *queue.Store, processor ItemProcessor, bus *events.Bus, logger *slog.Logger) *Manager {
	if bus == nil {
		bus = events.NewBus(logger)
	}
	errRetry := time.Duration(cfg.Queue.ErrorRetryInterval) * time.Second
	if errRetry <= 0 {
		errRetry = 10 * time.Second
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		processor: processor,
		bus:       bus,
		logger:    logging.NewComponentLogger(logger, "dispatcher"),
		permits:   newPermitPool(cfg.Queue.MaxConcurrency),
		errRetry:  errRetry,
	}
}

// ProcessAll starts draining pending items, at most maxItems of them
// (0 means no cap). When a run is already active its handle is returned
// instead of starting a second one.
func (m *Manager) ProcessAll(ctx context.Context, maxItems int) *Run {
	m.mu.Lock()
	if m.current != nil && !m.current.finished() {
		run := m.current
		m.mu.Unlock()
		return run
	}
	run := newRun()
	m.current = run
	m.mu.Unlock()

	go m.drain(ctx, run, maxItems)
	return run
}

// ActiveRun returns the in-flight run, or nil when idle.
func (m *Manager) ActiveRun() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.finished() {
		return nil
	}
	return m.current
}

// Pause stops new items from starting. Items already in flight keep running.
func (m *Manager) Pause() {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = true
	m.resume = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("dispatch paused", logging.String(logging.FieldEventType, "dispatch_paused"))
	m.bus.BatchPaused()
}

// Resume lifts a pause. Calling Resume while running is a no-op.
func (m *Manager) Resume() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = false
	resume := m.resume
	m.resume = nil
	m.mu.Unlock()

	close(resume)
	m.logger.Info("dispatch resumed", logging.String(logging.FieldEventType, "dispatch_resumed"))
	m.bus.BatchResumed()
}

// Paused reports whether the dispatch gate is closed.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// CancelItem cancels one pending item. Processing and terminal items are left
// untouched and false is returned.
func (m *Manager) CancelItem(ctx context.Context, id int64) (bool, error) {
	cancelled, err := m.store.CancelPending(ctx, id)
	if err != nil || !cancelled {
		return cancelled, err
	}
	if item, getErr := m.store.GetByID(ctx, id); getErr == nil && item != nil {
		m.bus.ItemCancelled(item)
		m.bus.StatusChanged(item, queue.StatusPending)
	}
	return true, nil
}

// CancelAllPending cancels every pending item and reports how many changed.
func (m *Manager) CancelAllPending(ctx context.Context) (int64, error) {
	items, err := m.store.CancelAllPending(ctx)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		m.bus.ItemCancelled(item)
		m.bus.StatusChanged(item, queue.StatusPending)
	}
	if len(items) > 0 {
		m.logger.Info("pending items cancelled",
			logging.String(logging.FieldEventType, "pending_cancelled"),
			logging.Int("count", len(items)))
	}
	return int64(len(items)), nil
}

// SetMaxConcurrency changes the permit ceiling for future dispatch decisions.
// Items already running are unaffected.
func (m *Manager) SetMaxConcurrency(limit int) error {
	if limit < 1 || limit > config.MaxConcurrencyLimit {
		return services.Wrap(services.ErrConfiguration, "dispatcher", "set max concurrency",
			fmt.Sprintf("limit %d outside [1, %d]", limit, config.MaxConcurrencyLimit), nil)
	}
	m.permits.Resize(limit)
	m.logger.Info("max concurrency updated",
		logging.String(logging.FieldEventType, "concurrency_updated"),
		logging.Int("limit", limit))
	return nil
}

// MaxConcurrency reports the current permit ceiling.
func (m *Manager) MaxConcurrency() int {
	return m.permits.Limit()
}

// InFlight reports how many items are currently running.
func (m *Manager) InFlight() int {
	return m.permits.Active()
}

func (m *Manager) drain(ctx context.Context, run *Run, maxItems int) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	defer func() {
		processed, failed := run.tally()
		run.finish()
		m.bus.BatchCompleted(processed, failed, run.Elapsed())
		logger.Info("batch completed",
			logging.String(logging.FieldEventType, "batch_completed"),
			logging.Int("processed", processed),
			logging.Int("failed", failed),
			logging.Duration("elapsed", run.Elapsed()))
	}()

	if health, err := m.store.Health(ctx); err == nil {
		m.bus.BatchStarted(health.Pending)
		logger.Info("batch started",
			logging.String(logging.FieldEventType, "batch_started"),
			logging.Int("pending", health.Pending))
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	launched := 0
	for ctx.Err() == nil && (maxItems <= 0 || launched < maxItems) {
		if err := m.waitWhilePaused(ctx); err != nil {
			return
		}
		if err := m.permits.Acquire(ctx); err != nil {
			return
		}

		item, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			m.permits.Release()
			logger.Error("failed to claim next pending item",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.errRetry):
			}
			continue
		}
		if item == nil {
			m.permits.Release()
			return
		}

		launched++
		wg.Add(1)
		go func(item *queue.Item) {
			defer wg.Done()
			defer m.permits.Release()
			run.record(m.processor.Process(ctx, item))
		}(item)
	}
}

// waitWhilePaused blocks until the pause gate opens or the context ends.
func (m *Manager) waitWhilePaused(ctx context.Context) error {
	for {
		m.mu.Lock()
		if !m.paused {
			m.mu.Unlock()
			return nil
		}
		resume := m.resume
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}
