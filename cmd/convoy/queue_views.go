package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"convoy/internal/ipc"
	"convoy/internal/queue"
)

// statusDisplayOrder fixes the row order for status summaries so output stays
// stable regardless of map iteration.
var statusDisplayOrder = []queue.Status{
	queue.StatusPending,
	queue.StatusProcessing,
	queue.StatusCompleted,
	queue.StatusFailed,
	queue.StatusCancelled,
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(stats))
	for _, status := range statusDisplayOrder {
		key := string(status)
		count, ok := stats[key]
		if !ok || count == 0 {
			continue
		}
		seen[key] = true
		rows = append(rows, []string{key, strconv.Itoa(count)})
	}

	var extras []string
	for key, count := range stats {
		if !seen[key] && count > 0 {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	return rows
}

func buildQueueListRows(items []ipc.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.RepoName,
			item.Status,
			strconv.Itoa(item.Priority),
			item.Framework,
			formatTimestamp(item.CreatedAt),
		})
	}
	return rows
}

func buildQueueItemLines(item ipc.QueueItem) []string {
	lines := []string{
		fmt.Sprintf("Item %d: %s", item.ID, item.RepoName),
		fmt.Sprintf("  URL:       %s", item.RepoURL),
		fmt.Sprintf("  Status:    %s", item.Status),
		fmt.Sprintf("  Priority:  %d", item.Priority),
		fmt.Sprintf("  Created:   %s", formatTimestamp(item.CreatedAt)),
		fmt.Sprintf("  Updated:   %s", formatTimestamp(item.UpdatedAt)),
	}
	if item.StartedAt != nil {
		lines = append(lines, fmt.Sprintf("  Started:   %s", formatTimestamp(*item.StartedAt)))
	}
	if item.FinishedAt != nil {
		lines = append(lines, fmt.Sprintf("  Finished:  %s", formatTimestamp(*item.FinishedAt)))
	}
	if item.Framework != "" {
		lines = append(lines, fmt.Sprintf("  Framework: %s", item.Framework))
	}
	if item.ResultMessage != "" {
		lines = append(lines, fmt.Sprintf("  Result:    %s", item.ResultMessage))
	}
	if item.ErrorCategory != "" {
		lines = append(lines, fmt.Sprintf("  Error:     [%s] %s", item.ErrorCategory, item.ErrorMessage))
	}
	return lines
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}
