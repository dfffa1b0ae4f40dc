package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, repo_url, repo_name, config_json, priority, position, status, created_at, updated_at, started_at, finished_at, framework, result_message, error_category, error_message"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		repoURL       string
		repoName      sql.NullString
		configJSON    sql.NullString
		priority      int
		position      int64
		statusStr     string
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		framework     sql.NullString
		resultMessage sql.NullString
		errorCategory sql.NullString
		errorMessage  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&repoURL,
		&repoName,
		&configJSON,
		&priority,
		&position,
		&statusStr,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&framework,
		&resultMessage,
		&errorCategory,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		RepoURL:       repoURL,
		RepoName:      repoName.String,
		ConfigJSON:    configJSON.String,
		Priority:      priority,
		Position:      position,
		Status:        Status(statusStr),
		Framework:     framework.String,
		ResultMessage: resultMessage.String,
		ErrorCategory: errorCategory.String,
		ErrorMessage:  errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			item.FinishedAt = &finished
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
