package daemon

import (
	"context"
	"errors"

	"convoy/internal/dispatcher"
	"convoy/internal/logging"
	"convoy/internal/queue"
)

// Enqueue adds a repository migration to the queue and announces it on the bus.
func (d *Daemon) Enqueue(ctx context.Context, repoURL, repoName string, cfg queue.MigrationConfig, priority int) (*queue.Item, error) {
	item, err := d.store.Enqueue(ctx, repoURL, repoName, cfg, priority)
	if err != nil {
		return nil, err
	}
	d.bus.ItemAdded(item)
	// A fresh item has no prior status; subscribers see the empty string.
	d.bus.StatusChanged(item, "")
	d.logger.Info("item enqueued",
		logging.String(logging.FieldEventType, "item_enqueued"),
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("repo", item.RepoURL),
		logging.Int("priority", item.Priority))
	return item, nil
}

// RemoveItem deletes a queue item unless it is processing.
func (d *Daemon) RemoveItem(ctx context.Context, id int64) (bool, error) {
	item, err := d.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	removed, err := d.store.Remove(ctx, id)
	if err != nil || !removed {
		return removed, err
	}
	if item != nil {
		d.bus.ItemRemoved(item)
	}
	return true, nil
}

// CancelItem cancels one pending item.
func (d *Daemon) CancelItem(ctx context.Context, id int64) (bool, error) {
	return d.dispatcher.CancelItem(ctx, id)
}

// CancelAllPending cancels every pending item.
func (d *Daemon) CancelAllPending(ctx context.Context) (int64, error) {
	return d.dispatcher.CancelAllPending(ctx)
}

// Reorder rewrites the FIFO order of pending items.
func (d *Daemon) Reorder(ctx context.Context, ids []int64) error {
	return d.store.Reorder(ctx, ids)
}

// Process starts a batch drain, at most maxItems items (0 for no cap). It
// reports whether a run was already active.
func (d *Daemon) Process(maxItems int) (*dispatcher.Run, bool, error) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return nil, false, errors.New("daemon is not running")
	}
	active := d.dispatcher.ActiveRun()
	run := d.dispatcher.ProcessAll(ctx, maxItems)
	return run, active != nil && active == run, nil
}

// PauseDispatch stops new items from starting.
func (d *Daemon) PauseDispatch() {
	d.dispatcher.Pause()
}

// ResumeDispatch lifts a dispatch pause.
func (d *Daemon) ResumeDispatch() {
	d.dispatcher.Resume()
}

// SetMaxConcurrency adjusts the dispatcher permit ceiling.
func (d *Daemon) SetMaxConcurrency(limit int) error {
	return d.dispatcher.SetMaxConcurrency(limit)
}

// RetryFailed requeues failed items; an empty id list retries all of them.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// ClearCompleted removes completed items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes failed items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ClearQueue removes every item not currently processing.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetQueueItem fetches a single queue item.
func (d *Daemon) GetQueueItem(ctx context.Context, id int64) (*queue.Item, error) {
	return d.store.GetByID(ctx, id)
}

// QueueHealth returns aggregate queue counts.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// TestNotification exercises the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "notification sent", nil
}
