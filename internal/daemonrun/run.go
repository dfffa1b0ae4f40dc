// Package daemonrun wires the daemon runtime from configuration and drives it
// until shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"convoy/internal/config"
	"convoy/internal/daemon"
	"convoy/internal/dispatcher"
	"convoy/internal/events"
	"convoy/internal/ipc"
	"convoy/internal/logging"
	"convoy/internal/notifications"
	"convoy/internal/pipeline"
	"convoy/internal/queue"
	"convoy/internal/services/detect"
	"convoy/internal/services/gitclone"
	"convoy/internal/services/workspace"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the convoy daemon runtime loop and blocks until it is stopped by
// a signal or an IPC stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}

	bus := events.NewBus(logger)
	runner := pipeline.NewRunner(cfg, store, bus,
		gitclone.NewCloner(cfg),
		detect.NewDetector(logger),
		workspace.NewCleaner(cfg, logger),
		logger)
	mgr := dispatcher.NewManager(cfg, store, runner, bus, logger)
	notifier := notifications.NewService(cfg)

	d, err := daemon.New(cfg, store, mgr, bus, notifier, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	server, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("init ipc server: %w", err)
	}
	server.Serve()
	defer server.Close()

	logger.Info("convoyd ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.SocketPath()),
		logging.String("queue_db", store.Path()))

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("shutdown requested",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}
