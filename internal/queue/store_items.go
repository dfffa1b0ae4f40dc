package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Enqueue inserts a new pending item with the given priority. The configuration
// snapshot is serialized at insert time so later changes to shared settings
// cannot leak into queued work.
func (s *Store) Enqueue(ctx context.Context, repoURL, repoName string, cfg MigrationConfig, priority int) (*Item, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return nil, errors.New("repository url is required")
	}
	if strings.TrimSpace(repoName) == "" {
		repoName = inferNameFromURL(repoURL)
	}
	configJSON, err := cfg.Encode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_items (
            repo_url, repo_name, config_json, priority, position, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM queue_items), ?, ?, ?)`,
		repoURL,
		repoName,
		configJSON,
		priority,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET repo_url = ?, repo_name = ?, config_json = ?, priority = ?, position = ?,
             status = ?, updated_at = ?, started_at = ?, finished_at = ?,
             framework = ?, result_message = ?, error_category = ?, error_message = ?
         WHERE id = ?`,
		item.RepoURL,
		nullableString(item.RepoName),
		nullableString(item.ConfigJSON),
		item.Priority,
		item.Position,
		item.Status,
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.StartedAt),
		nullableTime(item.FinishedAt),
		nullableString(item.Framework),
		nullableString(item.ResultMessage),
		nullableString(item.ErrorCategory),
		nullableString(item.ErrorMessage),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns items filtered by status in dispatch order. With no statuses,
// every item is returned.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY priority DESC, position ASC, id ASC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes an item unless it is processing. Returns true when a row was
// removed; a processing or unknown id leaves the queue untouched.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM queue_items WHERE id = ? AND status != ?`,
		id,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("remove item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove item: %w", err)
	}
	return affected > 0, nil
}

// Reorder moves the named pending items to the front of the dispatch order, in
// the given sequence. Pending items not named keep their relative order behind
// them, and non-pending items keep their relative order at the end. Unknown
// ids are rejected.
func (s *Store) Reorder(ctx context.Context, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return nil
	}
	return s.txWithRetry(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(
			ensureContext(ctx),
			`SELECT id, status FROM queue_items ORDER BY position ASC, id ASC`,
		)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		pending := make([]int64, 0, 16)
		settled := make([]int64, 0, 16)
		pendingSet := make(map[int64]struct{}, 16)
		for rows.Next() {
			var id int64
			var status Status
			if err := rows.Scan(&id, &status); err != nil {
				rows.Close()
				return fmt.Errorf("scan item id: %w", err)
			}
			if status == StatusPending {
				pending = append(pending, id)
				pendingSet[id] = struct{}{}
			} else {
				settled = append(settled, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		known := make(map[int64]struct{}, len(pending)+len(settled))
		for _, id := range pending {
			known[id] = struct{}{}
		}
		for _, id := range settled {
			known[id] = struct{}{}
		}

		named := make([]int64, 0, len(orderedIDs))
		namedSet := make(map[int64]struct{}, len(orderedIDs))
		for _, id := range orderedIDs {
			if _, ok := pendingSet[id]; !ok {
				if _, exists := known[id]; !exists {
					return fmt.Errorf("reorder: unknown item %d", id)
				}
				// Known but no longer pending: position is meaningless, skip it.
				continue
			}
			if _, dup := namedSet[id]; dup {
				continue
			}
			named = append(named, id)
			namedSet[id] = struct{}{}
		}

		// Renumber every row so the pending block always sorts ahead of
		// settled items, whatever positions they held before.
		order := make([]int64, 0, len(pending)+len(settled))
		order = append(order, named...)
		for _, id := range pending {
			if _, ok := namedSet[id]; !ok {
				order = append(order, id)
			}
		}
		order = append(order, settled...)

		timestamp := time.Now().UTC().Format(time.RFC3339Nano)
		for idx, id := range order {
			if _, err := tx.ExecContext(
				ensureContext(ctx),
				`UPDATE queue_items SET position = ?, updated_at = ? WHERE id = ?`,
				int64(idx)+1,
				timestamp,
				id,
			); err != nil {
				return fmt.Errorf("reposition item %d: %w", id, err)
			}
		}
		return nil
	})
}

func inferNameFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if idx := strings.LastIndex(trimmed, ":"); idx >= 0 && !strings.Contains(trimmed[idx:], "/") {
		trimmed = trimmed[idx+1:]
	}
	name := path.Base(trimmed)
	if name == "." || name == "/" || name == "" {
		return repoURL
	}
	return name
}
