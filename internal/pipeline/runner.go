package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"convoy/internal/config"
	"convoy/internal/events"
	"convoy/internal/logging"
	"convoy/internal/queue"
	"convoy/internal/services"
)

const (
	// cleanupGrace bounds teardown for items whose own deadline already expired.
	cleanupGrace = 30 * time.Second
	// persistGrace bounds the final state write so terminal results always land.
	persistGrace = 10 * time.Second
)

// Runner executes migrations for claimed queue items.
type Runner struct {
	store       *queue.Store
	bus         *events.Bus
	cloner      Cloner
	transformer Transformer
	cleaner     Cleaner
	timeout     time.Duration
	logger      *slog.Logger
}

// NewRunner wires a runner from its collaborators. The per-item timeout comes
// from the queue configuration.
func NewRunner(cfg *config.Config, store *queue.Store, bus *events.Bus, cloner Cloner, transformer Transformer, cleaner Cleaner, logger *slog.Logger) *Runner {
	timeout := time.Duration(cfg.Queue.ItemTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &Runner{
		store:       store,
		bus:         bus,
		cloner:      cloner,
		transformer: transformer,
		cleaner:     cleaner,
		timeout:     timeout,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Process runs one already-claimed item to a terminal state and persists the
// result. The item must be in processing status with StartedAt stamped.
func (r *Runner) Process(ctx context.Context, item *queue.Item) ItemResult {
	started := time.Now()
	itemCtx := services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(itemCtx, r.logger)

	r.bus.ItemStarted(item)
	logger.Info("migration started",
		logging.String(logging.FieldEventType, "item_start"),
		logging.String("repo", item.RepoURL))

	runCtx, cancel := context.WithTimeout(itemCtx, r.timeout)
	framework, runErr := r.execute(runCtx, logger, item)
	cancel()

	previous := item.Status
	if runErr == nil {
		item.SetCompleted(framework, "migration completed")
	} else {
		item.SetFailed(services.Category(runErr), runErr.Error())
	}

	r.persist(item, logger)

	result := ItemResult{
		ItemID:    item.ID,
		RepoName:  item.RepoName,
		Status:    item.Status,
		Framework: item.Framework,
		Category:  item.ErrorCategory,
		Err:       runErr,
		Elapsed:   time.Since(started),
	}

	if runErr == nil {
		logger.Info("migration completed",
			logging.String(logging.FieldEventType, "item_complete"),
			logging.String("framework", framework),
			logging.Duration("elapsed", result.Elapsed))
		r.bus.ItemCompleted(item)
	} else {
		logger.Error("migration failed",
			logging.String(logging.FieldEventType, "item_failure"),
			logging.String("category", result.Category),
			logging.Duration("elapsed", result.Elapsed),
			logging.Error(runErr))
		r.bus.ItemFailed(item)
	}
	r.bus.StatusChanged(item, previous)
	return result
}

// execute runs clone and transform under the item deadline and guarantees a
// single cleanup invocation regardless of outcome.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, item *queue.Item) (framework string, err error) {
	var workdir string
	defer func() {
		r.cleanup(ctx, logger, workdir)
	}()

	snapshot, cfgErr := item.Config()
	if cfgErr != nil {
		return "", services.Wrap(services.ErrConfiguration, "clone", "decode config", "stored migration config unreadable", cfgErr)
	}

	repo := Repo{URL: item.RepoURL, Branch: snapshot.Branch, Depth: snapshot.CloneDepth}
	creds := resolveCredentials(snapshot)

	workdir, err = r.cloner.Clone(ctx, repo, creds)
	if err != nil {
		return "", classify(ctx, services.ErrClone, "clone", err)
	}

	framework, err = r.transformer.Transform(ctx, workdir)
	if err != nil {
		return "", classify(ctx, services.ErrTransform, "transform", err)
	}
	return framework, nil
}

// cleanup tears the working directory down exactly once. Expired item contexts
// get a fresh bounded context so teardown still runs.
func (r *Runner) cleanup(ctx context.Context, logger *slog.Logger, workdir string) {
	cleanupCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		cleanupCtx, cancel = context.WithTimeout(context.Background(), cleanupGrace)
		defer cancel()
	}
	if err := r.cleaner.Cleanup(cleanupCtx, workdir); err != nil {
		logger.Warn("workspace cleanup failed",
			logging.String(logging.FieldEventType, "cleanup_failure"),
			logging.String("workdir", workdir),
			logging.Error(err))
	}
}

// persist writes the terminal state on a fresh context so an expired item
// deadline cannot lose the result.
func (r *Runner) persist(item *queue.Item, logger *slog.Logger) {
	persistCtx, cancel := context.WithTimeout(context.Background(), persistGrace)
	defer cancel()
	if err := r.store.Update(persistCtx, item); err != nil {
		logger.Error("failed to persist item result", logging.Error(err))
	}
}

func resolveCredentials(snapshot queue.MigrationConfig) Credentials {
	name := strings.TrimSpace(snapshot.TokenEnv)
	if name == "" {
		return Credentials{}
	}
	return Credentials{Token: os.Getenv(name)}
}

// classify tags a stage error with its sentinel, promoting deadline expiry to
// the timeout category so a slow clone and a slow transform report the same way.
func classify(ctx context.Context, marker error, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, "", "item deadline exceeded", err)
	}
	return services.Wrap(marker, stage, "", "", err)
}
