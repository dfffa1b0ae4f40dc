package pipeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"convoy/internal/events"
	"convoy/internal/pipeline"
	"convoy/internal/queue"
	"convoy/internal/services"
	"convoy/internal/testsupport"
)

type fakeCloner struct {
	workdir string
	err     error
	block   bool
	calls   atomic.Int64
}

func (f *fakeCloner) Clone(ctx context.Context, repo pipeline.Repo, creds pipeline.Credentials) (string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.workdir, f.err
}

type fakeTransformer struct {
	framework string
	err       error
	calls     atomic.Int64
	lastDir   string
}

func (f *fakeTransformer) Transform(ctx context.Context, workdir string) (string, error) {
	f.calls.Add(1)
	f.lastDir = workdir
	return f.framework, f.err
}

type fakeCleaner struct {
	calls   atomic.Int64
	lastDir string
	ctxErr  error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, workdir string) error {
	f.calls.Add(1)
	f.lastDir = workdir
	f.ctxErr = ctx.Err()
	return nil
}

func claimItem(t *testing.T, store *queue.Store, priority int) *queue.Item {
	t.Helper()
	testsupport.Enqueue(t, store, "https://github.com/acme/svc", priority)
	item, err := store.ClaimNextPending(context.Background())
	if err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected a claimed item")
	}
	return item
}

func TestRunnerCompletesItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cloner := &fakeCloner{workdir: t.TempDir()}
	transformer := &fakeTransformer{framework: "go"}
	cleaner := &fakeCleaner{}
	runner := pipeline.NewRunner(cfg, store, events.NewBus(nil), cloner, transformer, cleaner, nil)

	item := claimItem(t, store, 0)
	result := runner.Process(context.Background(), item)

	if !result.Succeeded() {
		t.Fatalf("expected success, got %#v", result)
	}
	if result.Framework != "go" {
		t.Fatalf("expected framework marker, got %q", result.Framework)
	}
	if transformer.lastDir != cloner.workdir {
		t.Fatalf("transform saw %q, clone produced %q", transformer.lastDir, cloner.workdir)
	}
	if cleaner.calls.Load() != 1 {
		t.Fatalf("expected exactly one cleanup, got %d", cleaner.calls.Load())
	}

	fetched, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("expected persisted completion, got %s", fetched.Status)
	}
	if fetched.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be stamped")
	}
}

func TestRunnerCloneFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cloner := &fakeCloner{err: errors.New("remote unreachable")}
	transformer := &fakeTransformer{}
	cleaner := &fakeCleaner{}
	runner := pipeline.NewRunner(cfg, store, events.NewBus(nil), cloner, transformer, cleaner, nil)

	item := claimItem(t, store, 0)
	result := runner.Process(context.Background(), item)

	if result.Status != queue.StatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	if result.Category != services.CategoryClone {
		t.Fatalf("expected clone failure category, got %q", result.Category)
	}
	if transformer.calls.Load() != 0 {
		t.Fatal("transform must not run after clone failure")
	}
	if cleaner.calls.Load() != 1 {
		t.Fatalf("expected exactly one cleanup, got %d", cleaner.calls.Load())
	}

	fetched, _ := store.GetByID(context.Background(), item.ID)
	if fetched.Status != queue.StatusFailed || fetched.ErrorCategory != services.CategoryClone {
		t.Fatalf("expected persisted clone failure, got %#v", fetched)
	}
	if fetched.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be stamped on failure")
	}
}

func TestRunnerTransformFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	cloner := &fakeCloner{workdir: dir}
	transformer := &fakeTransformer{err: errors.New("template broke")}
	cleaner := &fakeCleaner{}
	runner := pipeline.NewRunner(cfg, store, events.NewBus(nil), cloner, transformer, cleaner, nil)

	item := claimItem(t, store, 0)
	result := runner.Process(context.Background(), item)

	if result.Category != services.CategoryTransform {
		t.Fatalf("expected transform failure category, got %q", result.Category)
	}
	if cleaner.calls.Load() != 1 || cleaner.lastDir != dir {
		t.Fatalf("expected one cleanup of %q, got %d of %q", dir, cleaner.calls.Load(), cleaner.lastDir)
	}
}

func TestRunnerTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithItemTimeout(1))
	store := testsupport.MustOpenStore(t, cfg)
	cloner := &fakeCloner{block: true}
	transformer := &fakeTransformer{}
	cleaner := &fakeCleaner{}
	runner := pipeline.NewRunner(cfg, store, events.NewBus(nil), cloner, transformer, cleaner, nil)

	item := claimItem(t, store, 0)
	result := runner.Process(context.Background(), item)

	if result.Status != queue.StatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	if result.Category != services.CategoryTimeout {
		t.Fatalf("expected timeout category, got %q", result.Category)
	}
	if cleaner.calls.Load() != 1 {
		t.Fatalf("expected exactly one cleanup, got %d", cleaner.calls.Load())
	}
	// Teardown for a timed-out item runs on a fresh, live context.
	if cleaner.ctxErr != nil {
		t.Fatalf("cleanup context already expired: %v", cleaner.ctxErr)
	}
}

func TestRunnerNotifiesBus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(nil)

	var sequence []string
	bus.Register(events.Hooks{
		OnItemStarted:   func(*queue.Item) { sequence = append(sequence, "started") },
		OnItemCompleted: func(*queue.Item) { sequence = append(sequence, "completed") },
		OnItemFailed:    func(*queue.Item) { sequence = append(sequence, "failed") },
	})

	runner := pipeline.NewRunner(cfg, store, bus, &fakeCloner{workdir: t.TempDir()}, &fakeTransformer{framework: "rails"}, &fakeCleaner{}, nil)
	item := claimItem(t, store, 0)
	runner.Process(context.Background(), item)

	if len(sequence) != 2 || sequence[0] != "started" || sequence[1] != "completed" {
		t.Fatalf("unexpected event sequence: %v", sequence)
	}
}
