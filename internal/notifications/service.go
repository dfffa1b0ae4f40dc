package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"convoy/internal/config"
)

const userAgent = "Convoy-Go/0.1.0"

// Service defines the notification surface exposed to queue components.
type Service interface {
	NotifyBatchStarted(ctx context.Context, count int) error
	NotifyBatchCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) error
	NotifyItemCompleted(ctx context.Context, repoName, framework string) error
	NotifyItemFailed(ctx context.Context, repoName, category, message string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, count int) error {
	data := payload{
		title:   "Convoy - Batch Started",
		message: fmt.Sprintf("Processing %d queued migration(s)", count),
		tags:    []string{"convoy", "batch", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) error {
	data := payload{
		title:   "Convoy - Batch Completed",
		message: fmt.Sprintf("Finished %d migration(s), %d failed in %s", processed+failed, failed, elapsed.Round(time.Second)),
		tags:    []string{"convoy", "batch", "completed"},
	}
	if failed > 0 {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemCompleted(ctx context.Context, repoName, framework string) error {
	repoName = strings.TrimSpace(repoName)
	if repoName == "" {
		repoName = "repository"
	}
	message := fmt.Sprintf("Migrated %s", repoName)
	if framework = strings.TrimSpace(framework); framework != "" {
		message = fmt.Sprintf("Migrated %s (%s)", repoName, framework)
	}
	data := payload{
		title:   "Convoy - Migration Completed",
		message: message,
		tags:    []string{"convoy", "item", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemFailed(ctx context.Context, repoName, category, message string) error {
	repoName = strings.TrimSpace(repoName)
	if repoName == "" {
		repoName = "repository"
	}
	if category = strings.TrimSpace(category); category == "" {
		category = "unknown"
	}
	body := fmt.Sprintf("Migration of %s failed (%s)", repoName, category)
	if message = strings.TrimSpace(message); message != "" {
		body = fmt.Sprintf("%s: %s", body, truncate(message, 200))
	}
	data := payload{
		title:    "Convoy - Migration Failed",
		message:  body,
		tags:     []string{"convoy", "item", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	message := "Unexpected error"
	if err != nil {
		message = truncate(err.Error(), 200)
	}
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		message = fmt.Sprintf("%s: %s", contextLabel, message)
	}
	data := payload{
		title:    "Convoy - Error",
		message:  message,
		tags:     []string{"convoy", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "Convoy - Test",
		message: "Notifications are configured correctly",
		tags:    []string{"convoy", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "…"
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, int) error { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyItemCompleted(context.Context, string, string) error  { return nil }
func (noopService) NotifyItemFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
