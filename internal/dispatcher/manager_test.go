package dispatcher_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"convoy/internal/dispatcher"
	"convoy/internal/events"
	"convoy/internal/pipeline"
	"convoy/internal/queue"
	"convoy/internal/services"
	"convoy/internal/testsupport"
)

type fakeProcessor struct {
	store *queue.Store

	concurrent atomic.Int64
	peak       atomic.Int64

	mu        sync.Mutex
	processed []int64

	gate    chan struct{}
	failIDs map[int64]bool
}

func (f *fakeProcessor) Process(ctx context.Context, item *queue.Item) pipeline.ItemResult {
	cur := f.concurrent.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer f.concurrent.Add(-1)

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}

	if f.failIDs[item.ID] {
		item.SetFailed(services.CategoryTransform, "synthetic failure")
	} else {
		item.SetCompleted("go", "migrated")
	}
	if err := f.store.Update(context.Background(), item); err != nil {
		panic(err)
	}

	f.mu.Lock()
	f.processed = append(f.processed, item.ID)
	f.mu.Unlock()

	return pipeline.ItemResult{ItemID: item.ID, Status: item.Status, Category: item.ErrorCategory}
}

func (f *fakeProcessor) processedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.processed))
	copy(out, f.processed)
	return out
}

func waitRun(t *testing.T, run *dispatcher.Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}
}

func TestProcessAllDrainsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	for i := 0; i < 5; i++ {
		testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)
	}

	run := mgr.ProcessAll(context.Background(), 0)
	waitRun(t, run)

	results := run.Results()
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, res := range results {
		if !res.Succeeded() {
			t.Fatalf("expected success, got %#v", res)
		}
	}

	health, err := store.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 5 || health.Completed != 5 || health.Pending != 0 {
		t.Fatalf("count invariant violated: %#v", health)
	}
}

func TestProcessAllHonorsMaxConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrency(2))
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store, gate: make(chan struct{})}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	for i := 0; i < 6; i++ {
		testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)
	}

	run := mgr.ProcessAll(context.Background(), 0)
	close(proc.gate)
	waitRun(t, run)

	if peak := proc.peak.Load(); peak > 2 {
		t.Fatalf("observed %d concurrent items with limit 2", peak)
	}
	if len(run.Results()) != 6 {
		t.Fatalf("expected 6 results, got %d", len(run.Results()))
	}
}

func TestProcessAllReturnsActiveRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	gate := make(chan struct{})
	proc := &fakeProcessor{store: store, gate: gate}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)

	first := mgr.ProcessAll(context.Background(), 0)
	second := mgr.ProcessAll(context.Background(), 0)
	if first != second {
		t.Fatal("expected the active run to be returned")
	}

	close(gate)
	waitRun(t, first)

	testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)
	third := mgr.ProcessAll(context.Background(), 0)
	if third == first {
		t.Fatal("expected a fresh run after the previous one finished")
	}
	waitRun(t, third)
}

func TestProcessAllRespectsMaxItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	for i := 0; i < 5; i++ {
		testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)
	}

	run := mgr.ProcessAll(context.Background(), 2)
	waitRun(t, run)

	if len(run.Results()) != 2 {
		t.Fatalf("expected 2 results, got %d", len(run.Results()))
	}
	health, _ := store.Health(context.Background())
	if health.Pending != 3 {
		t.Fatalf("expected 3 items left pending, got %#v", health)
	}
}

func TestProcessAllClaimsInPriorityOrderWithSingleWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrency(1))
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	priorities := []int{0, 0, 5, 0, 2}
	ids := make([]int64, len(priorities))
	for i, priority := range priorities {
		ids[i] = testsupport.Enqueue(t, store, "https://github.com/acme/svc", priority).ID
	}

	run := mgr.ProcessAll(context.Background(), 0)
	waitRun(t, run)

	got := proc.processedIDs()
	want := []int64{ids[2], ids[4], ids[0], ids[1], ids[3]}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected dispatch order %v, got %v", want, got)
		}
	}
}

func TestPauseGatesNewItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	for i := 0; i < 3; i++ {
		testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)
	}

	mgr.Pause()
	mgr.Pause() // idempotent
	run := mgr.ProcessAll(context.Background(), 0)

	time.Sleep(100 * time.Millisecond)
	if n := len(proc.processedIDs()); n != 0 {
		t.Fatalf("paused dispatcher started %d items", n)
	}
	select {
	case <-run.Done():
		t.Fatal("paused run must keep waiting, not complete")
	default:
	}

	mgr.Resume()
	mgr.Resume() // idempotent
	waitRun(t, run)

	if len(run.Results()) != 3 {
		t.Fatalf("expected 3 results after resume, got %d", len(run.Results()))
	}
}

func TestPauseLeavesInFlightItemsRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrency(1))
	store := testsupport.MustOpenStore(t, cfg)
	gate := make(chan struct{})
	proc := &fakeProcessor{store: store, gate: gate}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)
	run := mgr.ProcessAll(context.Background(), 0)

	deadline := time.Now().Add(5 * time.Second)
	for proc.concurrent.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("item never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mgr.Pause()
	close(gate) // the in-flight item finishes despite the pause
	deadline = time.Now().Add(5 * time.Second)
	for len(proc.processedIDs()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("in-flight item blocked by pause")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mgr.Resume()
	waitRun(t, run)
}

func TestCancelItemSemantics(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrency(1))
	store := testsupport.MustOpenStore(t, cfg)
	gate := make(chan struct{})
	proc := &fakeProcessor{store: store, gate: gate}
	bus := events.NewBus(nil)
	var cancelledIDs []int64
	var cancelledFrom []queue.Status
	var cancelMu sync.Mutex
	bus.Register(events.Hooks{
		OnItemCancelled: func(item *queue.Item) {
			cancelMu.Lock()
			cancelledIDs = append(cancelledIDs, item.ID)
			cancelMu.Unlock()
		},
		OnStatusChanged: func(item *queue.Item, previous queue.Status) {
			if item.Status != queue.StatusCancelled {
				return
			}
			cancelMu.Lock()
			cancelledFrom = append(cancelledFrom, previous)
			cancelMu.Unlock()
		},
	})
	mgr := dispatcher.NewManager(cfg, store, proc, bus, nil)

	first := testsupport.Enqueue(t, store, "https://github.com/acme/a", 5)
	second := testsupport.Enqueue(t, store, "https://github.com/acme/b", 0)

	run := mgr.ProcessAll(context.Background(), 0)
	deadline := time.Now().Add(5 * time.Second)
	for proc.concurrent.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first item never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The processing item refuses cancellation.
	cancelled, err := mgr.CancelItem(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("CancelItem failed: %v", err)
	}
	if cancelled {
		t.Fatal("expected cancel of processing item to fail")
	}

	// The pending item cancels and never dispatches.
	cancelled, err = mgr.CancelItem(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("CancelItem failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected pending item to cancel")
	}

	close(gate)
	waitRun(t, run)

	for _, id := range proc.processedIDs() {
		if id == second.ID {
			t.Fatal("cancelled item must not be dispatched")
		}
	}
	cancelMu.Lock()
	defer cancelMu.Unlock()
	if len(cancelledIDs) != 1 || cancelledIDs[0] != second.ID {
		t.Fatalf("expected cancellation event for %d, got %v", second.ID, cancelledIDs)
	}
	if len(cancelledFrom) != 1 || cancelledFrom[0] != queue.StatusPending {
		t.Fatalf("expected status change from pending, got %v", cancelledFrom)
	}
}

func TestCancelAllPendingAnnouncesEachItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(nil)
	var mu sync.Mutex
	changed := make(map[int64]queue.Status)
	bus.Register(events.Hooks{
		OnStatusChanged: func(item *queue.Item, previous queue.Status) {
			mu.Lock()
			changed[item.ID] = previous
			mu.Unlock()
		},
	})
	mgr := dispatcher.NewManager(cfg, store, &fakeProcessor{store: store}, bus, nil)

	a := testsupport.Enqueue(t, store, "https://github.com/acme/a", 0)
	b := testsupport.Enqueue(t, store, "https://github.com/acme/b", 3)

	count, err := mgr.CancelAllPending(context.Background())
	if err != nil {
		t.Fatalf("CancelAllPending failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 cancellations, got %d", count)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []int64{a.ID, b.ID} {
		previous, ok := changed[id]
		if !ok {
			t.Fatalf("expected status change for item %d, got %v", id, changed)
		}
		if previous != queue.StatusPending {
			t.Fatalf("expected item %d to change from pending, got %s", id, previous)
		}
	}
}

func TestSetMaxConcurrencyBounds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := dispatcher.NewManager(cfg, store, &fakeProcessor{store: store}, events.NewBus(nil), nil)

	for _, limit := range []int{0, -1, 11, 100} {
		err := mgr.SetMaxConcurrency(limit)
		if err == nil {
			t.Fatalf("expected error for limit %d", limit)
		}
		if services.Category(err) != services.CategoryConfiguration {
			t.Fatalf("expected configuration category for limit %d, got %q", limit, services.Category(err))
		}
	}

	if err := mgr.SetMaxConcurrency(10); err != nil {
		t.Fatalf("expected limit 10 to be accepted: %v", err)
	}
	if mgr.MaxConcurrency() != 10 {
		t.Fatalf("expected limit 10, got %d", mgr.MaxConcurrency())
	}
}

func TestPerItemFailureDoesNotAbortBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store, failIDs: map[int64]bool{}}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	bad := testsupport.Enqueue(t, store, "https://github.com/acme/bad", 9)
	proc.failIDs[bad.ID] = true
	for i := 0; i < 3; i++ {
		testsupport.Enqueue(t, store, "https://github.com/acme/good", 0)
	}

	run := mgr.ProcessAll(context.Background(), 0)
	waitRun(t, run)

	results := run.Results()
	if len(results) != 4 {
		t.Fatalf("expected all 4 items processed, got %d", len(results))
	}
	var failed int
	for _, res := range results {
		if !res.Succeeded() {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly 1 failure, got %d", failed)
	}
}

type slowCloner struct {
	blockURL string
}

func (c *slowCloner) Clone(ctx context.Context, repo pipeline.Repo, creds pipeline.Credentials) (string, error) {
	if repo.URL == c.blockURL {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", nil
}

type markerTransformer struct{}

func (markerTransformer) Transform(ctx context.Context, workdir string) (string, error) {
	return "go", nil
}

type noopCleaner struct{}

func (noopCleaner) Cleanup(ctx context.Context, workdir string) error { return nil }

func TestTimeoutDoesNotAffectSibling(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrency(2), testsupport.WithItemTimeout(1))
	store := testsupport.MustOpenStore(t, cfg)
	runner := pipeline.NewRunner(cfg, store, events.NewBus(nil), &slowCloner{blockURL: "https://github.com/acme/stuck"}, markerTransformer{}, noopCleaner{}, nil)
	mgr := dispatcher.NewManager(cfg, store, runner, events.NewBus(nil), nil)

	stuck := testsupport.Enqueue(t, store, "https://github.com/acme/stuck", 5)
	healthy := testsupport.Enqueue(t, store, "https://github.com/acme/healthy", 0)

	run := mgr.ProcessAll(context.Background(), 0)
	waitRun(t, run)

	byID := make(map[int64]pipeline.ItemResult)
	for _, res := range run.Results() {
		byID[res.ItemID] = res
	}
	if res := byID[stuck.ID]; res.Status != queue.StatusFailed || res.Category != services.CategoryTimeout {
		t.Fatalf("expected timeout failure for stuck item, got %#v", res)
	}
	if res := byID[healthy.ID]; !res.Succeeded() {
		t.Fatalf("expected sibling to complete, got %#v", res)
	}
}

func TestRunElapsedFreezesAfterFinish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store}
	mgr := dispatcher.NewManager(cfg, store, proc, events.NewBus(nil), nil)

	testsupport.Enqueue(t, store, "https://github.com/acme/svc", 0)

	run := mgr.ProcessAll(context.Background(), 0)
	waitRun(t, run)

	first := run.Elapsed()
	if first <= 0 {
		t.Fatalf("expected positive elapsed duration, got %v", first)
	}
	time.Sleep(20 * time.Millisecond)
	if again := run.Elapsed(); again != first {
		t.Fatalf("elapsed kept growing after finish: %v then %v", first, again)
	}
}
