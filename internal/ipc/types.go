package ipc

import (
	"time"

	"convoy/internal/queue"
)

// QueueItem is the wire representation of a queue entry.
type QueueItem struct {
	ID            int64      `json:"id"`
	RepoURL       string     `json:"repo_url"`
	RepoName      string     `json:"repo_name"`
	Priority      int        `json:"priority"`
	Status        string     `json:"status"`
	Framework     string     `json:"framework,omitempty"`
	ResultMessage string     `json:"result_message,omitempty"`
	ErrorCategory string     `json:"error_category,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// FromQueueItem converts a queue model into its wire representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	return QueueItem{
		ID:            item.ID,
		RepoURL:       item.RepoURL,
		RepoName:      item.RepoName,
		Priority:      item.Priority,
		Status:        string(item.Status),
		Framework:     item.Framework,
		ResultMessage: item.ResultMessage,
		ErrorCategory: item.ErrorCategory,
		ErrorMessage:  item.ErrorMessage,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		StartedAt:     item.StartedAt,
		FinishedAt:    item.FinishedAt,
	}
}

// EnqueueRequest adds a repository migration to the queue.
type EnqueueRequest struct {
	RepoURL  string `json:"repo_url"`
	RepoName string `json:"repo_name"`
	Branch   string `json:"branch"`
	Depth    int    `json:"depth"`
	TokenEnv string `json:"token_env"`
	Priority int    `json:"priority"`
}

// EnqueueResponse contains the created queue entry.
type EnqueueResponse struct {
	Item QueueItem `json:"item"`
}

// RemoveRequest deletes a queue item by id.
type RemoveRequest struct {
	ID int64 `json:"id"`
}

// RemoveResponse reports whether the item was deleted.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// CancelRequest cancels a pending item by id.
type CancelRequest struct {
	ID int64 `json:"id"`
}

// CancelResponse reports whether the item was cancelled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// CancelAllRequest cancels every pending item.
type CancelAllRequest struct{}

// CancelAllResponse reports the number of cancelled items.
type CancelAllResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// ReorderRequest rewrites the FIFO order of the named pending items.
type ReorderRequest struct {
	IDs []int64 `json:"ids"`
}

// ReorderResponse acknowledges the reorder.
type ReorderResponse struct {
	Reordered bool `json:"reordered"`
}

// ProcessRequest starts a batch drain. MaxItems of 0 means no cap.
type ProcessRequest struct {
	MaxItems int `json:"max_items"`
}

// ProcessResponse reports whether a run was started or already active.
type ProcessResponse struct {
	Started        bool `json:"started"`
	AlreadyRunning bool `json:"already_running"`
}

// PauseRequest stops new items from starting.
type PauseRequest struct{}

// PauseResponse acknowledges the pause.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest lifts a dispatch pause.
type ResumeRequest struct{}

// ResumeResponse acknowledges the resume.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// SetConcurrencyRequest adjusts the dispatcher permit ceiling.
type SetConcurrencyRequest struct {
	Limit int `json:"limit"`
}

// SetConcurrencyResponse reports the applied limit.
type SetConcurrencyResponse struct {
	Limit int `json:"limit"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/queue status information.
type StatusResponse struct {
	Running         bool           `json:"running"`
	Paused          bool           `json:"paused"`
	BatchActive     bool           `json:"batch_active"`
	MaxConcurrency  int            `json:"max_concurrency"`
	InFlight        int            `json:"in_flight"`
	QueueStats      map[string]int `json:"queue_stats"`
	LastProcessedAt *time.Time     `json:"last_processed_at,omitempty"`
	QueueDBPath     string         `json:"queue_db_path"`
	LockPath        string         `json:"lock_path"`
	PID             int            `json:"pid"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearRequest removes all non-processing items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed items.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed items.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
