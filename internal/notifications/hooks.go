package notifications

import (
	"context"
	"log/slog"
	"time"

	"convoy/internal/config"
	"convoy/internal/events"
	"convoy/internal/logging"
	"convoy/internal/queue"
)

// notifyTimeout bounds each delivery so a slow ntfy endpoint cannot stall the
// synchronous event bus for long.
const notifyTimeout = 15 * time.Second

// BusHooks adapts a Service into event bus hooks, honoring the per-kind
// toggles in the notification config. Delivery errors are logged, never
// propagated.
func BusHooks(cfg *config.Config, svc Service, logger *slog.Logger) events.Hooks {
	log := logging.NewComponentLogger(logger, "notifications")
	send := func(label string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn("notification delivery failed",
				logging.String(logging.FieldEventType, "notify_failed"),
				logging.String("notification", label),
				logging.Error(err))
		}
	}

	hooks := events.Hooks{}
	if cfg.Notifications.Batch {
		hooks.OnBatchStarted = func(count int) {
			send("batch_started", func(ctx context.Context) error {
				return svc.NotifyBatchStarted(ctx, count)
			})
		}
		hooks.OnBatchCompleted = func(processed, failed int, elapsed time.Duration) {
			send("batch_completed", func(ctx context.Context) error {
				return svc.NotifyBatchCompleted(ctx, processed, failed, elapsed)
			})
		}
	}
	if cfg.Notifications.Items {
		hooks.OnItemCompleted = func(item *queue.Item) {
			send("item_completed", func(ctx context.Context) error {
				return svc.NotifyItemCompleted(ctx, item.RepoName, item.Framework)
			})
		}
	}
	if cfg.Notifications.Errors {
		hooks.OnItemFailed = func(item *queue.Item) {
			send("item_failed", func(ctx context.Context) error {
				return svc.NotifyItemFailed(ctx, item.RepoName, item.ErrorCategory, item.ErrorMessage)
			})
		}
	}
	return hooks
}
