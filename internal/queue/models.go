package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// MigrationConfig is the per-item configuration snapshot taken at enqueue time.
// Later changes to shared settings never affect already-queued items. Credential
// material is carried as an environment variable reference, never as a value,
// so the persisted queue stays free of secrets.
type MigrationConfig struct {
	Branch      string `json:"branch,omitempty"`
	CloneDepth  int    `json:"clone_depth,omitempty"`
	TokenEnv    string `json:"token_env,omitempty"`
	TemplateSet string `json:"template_set,omitempty"`
}

// Encode serializes the snapshot for storage.
func (c MigrationConfig) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal migration config: %w", err)
	}
	return string(data), nil
}

// DecodeConfig parses a stored snapshot. An empty value yields zero settings.
func DecodeConfig(raw string) (MigrationConfig, error) {
	var cfg MigrationConfig
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return MigrationConfig{}, fmt.Errorf("parse migration config: %w", err)
	}
	return cfg, nil
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID            int64
	RepoURL       string
	RepoName      string
	ConfigJSON    string
	Priority      int
	Position      int64
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	Framework     string
	ResultMessage string
	ErrorCategory string
	ErrorMessage  string
}

// Config decodes the item's configuration snapshot.
func (i *Item) Config() (MigrationConfig, error) {
	return DecodeConfig(i.ConfigJSON)
}

// IsTerminal reports whether the item reached a terminal status.
func (i Item) IsTerminal() bool {
	return IsTerminal(i.Status)
}

// Succeeded reports whether the item finished successfully.
func (i Item) Succeeded() bool {
	return i.Status == StatusCompleted
}

// SetCompleted marks the item completed with the detected framework marker
// and stamps the finish time.
func (i *Item) SetCompleted(framework, message string) {
	i.Status = StatusCompleted
	i.Framework = framework
	i.ResultMessage = message
	i.ErrorCategory = ""
	i.ErrorMessage = ""
	i.stampFinished()
}

// SetFailed marks the item failed with a machine category and human message
// and stamps the finish time.
func (i *Item) SetFailed(category, message string) {
	i.Status = StatusFailed
	i.ErrorCategory = category
	i.ErrorMessage = message
	i.ResultMessage = message
	i.stampFinished()
}

func (i *Item) stampFinished() {
	now := time.Now().UTC()
	i.FinishedAt = &now
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
