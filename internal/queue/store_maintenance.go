package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for status output. The per-status counts always
// sum to Total.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// LastProcessedAt returns the most recent finish time among completed and
// failed items, or nil when nothing has finished processing yet. Cancelled
// items never ran, so they do not count.
func (s *Store) LastProcessedAt(ctx context.Context) (*time.Time, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT MAX(finished_at) FROM queue_items WHERE status IN (?, ?)`,
		StatusCompleted,
		StatusFailed,
	)
	var raw sql.NullString
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("last processed: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	finished, err := parseTimeString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("last processed: %w", err)
	}
	return &finished, nil
}

// ClearCompleted removes completed items and returns how many were deleted.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed items: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed items and returns how many were deleted.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed items: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every item that is not processing and returns how many were
// deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE status != ?`, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
