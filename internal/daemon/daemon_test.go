package daemon_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"convoy/internal/daemon"
	"convoy/internal/dispatcher"
	"convoy/internal/events"
	"convoy/internal/pipeline"
	"convoy/internal/queue"
	"convoy/internal/testsupport"
)

type instantProcessor struct {
	store *queue.Store
}

func (p instantProcessor) Process(ctx context.Context, item *queue.Item) pipeline.ItemResult {
	item.SetCompleted("go", "migrated")
	_ = p.store.Update(context.Background(), item)
	return pipeline.ItemResult{ItemID: item.ID, Status: item.Status}
}

func newDaemon(t *testing.T) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := dispatcher.NewManager(cfg, store, instantProcessor{store: store}, events.NewBus(nil), nil)
	d, err := daemon.New(cfg, store, mgr, events.NewBus(nil), nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon to report stopped")
	}
	// Stop is idempotent.
	d.Stop()
}

func TestDaemonRecoversInterruptedItems(t *testing.T) {
	d, store := newDaemon(t)

	item := testsupport.Enqueue(t, store, "https://github.com/acme/a", 0)
	if _, err := store.ClaimNextPending(context.Background()); err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	// Startup demotes the stranded processing item to pending, so the watch
	// loop picks it up again and completes it.
	deadline := time.Now().Add(15 * time.Second)
	for {
		fetched, err := store.GetByID(context.Background(), item.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if fetched.Status == queue.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("interrupted item never recovered, status %s", fetched.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestDaemonWatchDrainsPendingItems(t *testing.T) {
	d, store := newDaemon(t)

	for i := 0; i < 3; i++ {
		testsupport.Enqueue(t, store, "https://github.com/acme/svc", i)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(15 * time.Second)
	for {
		health, err := store.Health(context.Background())
		if err != nil {
			t.Fatalf("Health failed: %v", err)
		}
		if health.Completed == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained: %#v", health)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestDaemonWritesAndRemovesPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := dispatcher.NewManager(cfg, store, instantProcessor{store: store}, events.NewBus(nil), nil)
	d, err := daemon.New(cfg, store, mgr, events.NewBus(nil), nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}

	d.Stop()
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err: %v", err)
	}
}

// statusRecorder collects status change announcements from a bus.
type statusRecorder struct {
	mu      sync.Mutex
	changes []statusChange
}

type statusChange struct {
	itemID   int64
	previous queue.Status
	current  queue.Status
}

func (r *statusRecorder) hooks() events.Hooks {
	return events.Hooks{
		OnStatusChanged: func(item *queue.Item, previous queue.Status) {
			r.mu.Lock()
			r.changes = append(r.changes, statusChange{item.ID, previous, item.Status})
			r.mu.Unlock()
		},
	}
}

func (r *statusRecorder) snapshot() []statusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusChange(nil), r.changes...)
}

func TestEnqueueAnnouncesStatusChange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(nil)
	rec := &statusRecorder{}
	bus.Register(rec.hooks())
	mgr := dispatcher.NewManager(cfg, store, instantProcessor{store: store}, events.NewBus(nil), nil)
	d, err := daemon.New(cfg, store, mgr, bus, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	item, err := d.Enqueue(context.Background(), "https://github.com/acme/a", "", queue.MigrationConfig{}, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	changes := rec.snapshot()
	if len(changes) != 1 {
		t.Fatalf("expected one status change, got %v", changes)
	}
	got := changes[0]
	if got.itemID != item.ID || got.previous != "" || got.current != queue.StatusPending {
		t.Fatalf("unexpected status change %+v", got)
	}
}

func TestStartAnnouncesRecoveredItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(nil)
	rec := &statusRecorder{}
	bus.Register(rec.hooks())
	mgr := dispatcher.NewManager(cfg, store, instantProcessor{store: store}, events.NewBus(nil), nil)
	d, err := daemon.New(cfg, store, mgr, bus, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	item := testsupport.Enqueue(t, store, "https://github.com/acme/a", 0)
	if _, err := store.ClaimNextPending(context.Background()); err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	var demotion *statusChange
	for _, change := range rec.snapshot() {
		if change.itemID == item.ID && change.current == queue.StatusPending {
			c := change
			demotion = &c
			break
		}
	}
	if demotion == nil {
		t.Fatalf("expected demotion announcement for item %d, got %v", item.ID, rec.snapshot())
	}
	if demotion.previous != queue.StatusProcessing {
		t.Fatalf("expected demotion from processing, got %s", demotion.previous)
	}
}
