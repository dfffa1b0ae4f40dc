package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimNextPending atomically transitions the highest-priority pending item to
// processing and returns it. Priority descends first; ties dispatch in FIFO
// order by position. Returns nil when nothing is pending. The select and the
// status transition share one transaction so two workers can never claim the
// same item.
func (s *Store) ClaimNextPending(ctx context.Context) (*Item, error) {
	var claimed *Item
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		claimed = nil
		row := tx.QueryRowContext(
			ensureContext(ctx),
			`SELECT `+itemColumns+` FROM queue_items
             WHERE status = ?
             ORDER BY priority DESC, position ASC, id ASC
             LIMIT 1`,
			StatusPending,
		)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next pending: %w", err)
		}

		now := time.Now().UTC()
		timestamp := now.Format(time.RFC3339Nano)
		res, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE queue_items SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusProcessing,
			timestamp,
			timestamp,
			item.ID,
			StatusPending,
		)
		if err != nil {
			return fmt.Errorf("claim item %d: %w", item.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		item.Status = StatusProcessing
		item.StartedAt = &now
		item.UpdatedAt = now
		claimed = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CancelPending cancels a single pending item. Items that are processing or
// already terminal are left unchanged and the call reports false.
func (s *Store) CancelPending(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items SET status = ?, finished_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled,
		now,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel item: %w", err)
	}
	return affected > 0, nil
}

// CancelAllPending cancels every pending item and returns the items it
// cancelled, in dispatch order. Processing items are never interrupted. The
// select and the update share one transaction so the returned items are
// exactly the ones that changed.
func (s *Store) CancelAllPending(ctx context.Context) ([]*Item, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	var cancelled []*Item
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		cancelled = nil
		items, err := selectItemsByStatus(ctx, tx, StatusPending)
		if err != nil {
			return fmt.Errorf("list pending items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE queue_items SET status = ?, finished_at = ?, updated_at = ? WHERE status = ?`,
			StatusCancelled,
			timestamp,
			timestamp,
			StatusPending,
		); err != nil {
			return fmt.Errorf("cancel pending items: %w", err)
		}
		for _, item := range items {
			item.Status = StatusCancelled
			item.FinishedAt = &now
			item.UpdatedAt = now
		}
		cancelled = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ResetStuckProcessing demotes processing items back to pending and returns
// them. Called during startup recovery: after a restart no worker can
// legitimately own an item, so anything recovered as processing is requeued
// with its start time cleared.
func (s *Store) ResetStuckProcessing(ctx context.Context) ([]*Item, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	var demoted []*Item
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		demoted = nil
		items, err := selectItemsByStatus(ctx, tx, StatusProcessing)
		if err != nil {
			return fmt.Errorf("list stuck items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE queue_items SET status = ?, started_at = NULL, updated_at = ? WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusProcessing,
		); err != nil {
			return fmt.Errorf("reset stuck items: %w", err)
		}
		for _, item := range items {
			item.Status = StatusPending
			item.StartedAt = nil
			item.UpdatedAt = now
		}
		demoted = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return demoted, nil
}

func selectItemsByStatus(ctx context.Context, tx *sql.Tx, status Status) ([]*Item, error) {
	rows, err := tx.QueryContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY priority DESC, position ASC, id ASC`,
		status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RetryFailed moves failed items back to pending for reprocessing. With no ids,
// every failed item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
             SET status = ?, started_at = NULL, finished_at = NULL,
                 error_category = NULL, error_message = NULL, result_message = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, timestamp, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, started_at = NULL, finished_at = NULL,
             error_category = NULL, error_message = NULL, result_message = NULL, updated_at = ?
         WHERE status = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
