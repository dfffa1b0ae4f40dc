package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"convoy/internal/events"
	"convoy/internal/notifications"
	"convoy/internal/queue"
	"convoy/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifyBatchStarted(context.Background(), 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	type captured struct {
		title    string
		priority string
		body     string
	}
	var got captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	if err := svc.NotifyItemFailed(context.Background(), "billing", "clone_failure", "remote unreachable"); err != nil {
		t.Fatalf("NotifyItemFailed failed: %v", err)
	}
	if got.title != "Convoy - Migration Failed" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if got.priority != "high" {
		t.Fatalf("expected high priority, got %q", got.priority)
	}
	if !strings.Contains(got.body, "billing") || !strings.Contains(got.body, "clone_failure") {
		t.Fatalf("unexpected body %q", got.body)
	}

	if err := svc.NotifyBatchCompleted(context.Background(), 4, 0, 90*time.Second); err != nil {
		t.Fatalf("NotifyBatchCompleted failed: %v", err)
	}
	if got.priority != "" {
		t.Fatalf("clean batch should not escalate priority, got %q", got.priority)
	}
	if !strings.Contains(got.body, "4 migration(s)") {
		t.Fatalf("unexpected body %q", got.body)
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestBusHooksHonorToggles(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Batch = true
	cfg.Notifications.Items = false
	cfg.Notifications.Errors = true

	bus := events.NewBus(nil)
	bus.Register(notifications.BusHooks(cfg, notifications.NewService(cfg), nil))

	bus.BatchStarted(2)
	bus.ItemCompleted(&queue.Item{ID: 1, RepoName: "billing"})
	bus.ItemFailed(&queue.Item{ID: 2, RepoName: "api", ErrorCategory: "timeout"})

	if requests != 2 {
		t.Fatalf("expected 2 deliveries (batch + failure), got %d", requests)
	}
}
