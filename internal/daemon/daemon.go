package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"convoy/internal/config"
	"convoy/internal/deps"
	"convoy/internal/dispatcher"
	"convoy/internal/events"
	"convoy/internal/logging"
	"convoy/internal/notifications"
	"convoy/internal/queue"
)

// Daemon coordinates background queue processing services.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	dispatcher *dispatcher.Manager
	bus        *events.Bus
	notifier   notifications.Service
	logPath    string

	lockPath string
	lock     *flock.Flock
	pidPath  string

	running  atomic.Bool
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	Paused         bool
	BatchActive    bool
	MaxConcurrency int
	InFlight       int
	QueueStats     map[queue.Status]int
	// LastProcessedAt is the finish time of the most recently processed
	// item, nil when nothing has finished yet.
	LastProcessedAt *time.Time
	QueueDBPath     string
	LockFilePath    string
	PID             int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, mgr *dispatcher.Manager, bus *events.Bus, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, and dispatcher")
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		dispatcher: mgr,
		bus:        bus,
		notifier:   notifier,
		logPath:    cfg.LogFilePath(),
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		pidPath:    cfg.PIDPath(),
		done:       make(chan struct{}),
	}, nil
}

// Done is closed once the daemon has fully stopped, whether by Stop or by an
// IPC shutdown request.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Start acquires the instance lock, recovers interrupted items, and begins
// watching for pending work.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another convoy daemon instance is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	demoted, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		_ = os.Remove(d.pidPath)
		return fmt.Errorf("recover interrupted items: %w", err)
	}
	if len(demoted) > 0 {
		d.logger.Info("recovered interrupted items",
			logging.String(logging.FieldEventType, "items_recovered"),
			logging.Int("count", len(demoted)))
	}

	for _, dep := range deps.CheckBinaries(deps.Requirements(d.cfg)) {
		if !dep.Available && !dep.Optional {
			d.logger.Warn("required binary unavailable",
				logging.String("dependency", dep.Name),
				logging.String("detail", dep.Detail))
		}
	}

	d.bus.Register(notifications.BusHooks(d.cfg, d.notifier, d.logger))

	// Announce the demotions now that hooks are attached.
	for _, item := range demoted {
		d.bus.StatusChanged(item, queue.StatusProcessing)
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.watch()

	d.running.Store(true)
	d.logger.Info("convoy daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop drains the active batch within the shutdown grace period, then forces
// cancellation and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	grace := time.Duration(d.cfg.Queue.ShutdownGrace) * time.Second
	if run := d.dispatcher.ActiveRun(); run != nil && grace > 0 {
		waitCtx, cancel := context.WithTimeout(context.Background(), grace)
		if err := run.Wait(waitCtx); err != nil {
			d.logger.Warn("active batch did not drain before grace period",
				logging.String(logging.FieldEventType, "shutdown_forced"),
				logging.Duration("grace", grace))
		}
		cancel()
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	_ = os.Remove(d.pidPath)
	d.running.Store(false)
	d.doneOnce.Do(func() { close(d.done) })
	d.logger.Info("convoy daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath reports the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// watch polls for pending work and starts a batch whenever items are waiting
// and no run is active.
func (d *Daemon) watch() {
	defer d.wg.Done()

	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return
	}

	poll := time.Duration(d.cfg.Queue.PollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	retry := time.Duration(d.cfg.Queue.ErrorRetryInterval) * time.Second
	if retry <= 0 {
		retry = 10 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}

		if d.dispatcher.Paused() || d.dispatcher.ActiveRun() != nil {
			continue
		}

		health, err := d.store.Health(ctx)
		if err != nil {
			d.logger.Error("failed to poll queue health",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_poll_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}
		if health.Pending == 0 {
			continue
		}

		run := d.dispatcher.ProcessAll(ctx, 0)
		select {
		case <-ctx.Done():
			return
		case <-run.Done():
		}
	}
}

// Status reports current runtime and queue information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		Paused:         d.dispatcher.Paused(),
		BatchActive:    d.dispatcher.ActiveRun() != nil,
		MaxConcurrency: d.dispatcher.MaxConcurrency(),
		InFlight:       d.dispatcher.InFlight(),
		QueueDBPath:    d.store.Path(),
		LockFilePath:   d.lockPath,
		PID:            os.Getpid(),
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.QueueStats = stats
	}
	if last, err := d.store.LastProcessedAt(ctx); err == nil {
		status.LastProcessedAt = last
	}
	return status
}
