package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"convoy/internal/config"
	"convoy/internal/logging"
	"convoy/internal/services"
)

// Cleaner removes per-item working directories after a migration finishes.
// It refuses to delete anything outside the configured workspace root, so a
// collaborator bug can never escalate into deleting arbitrary paths.
type Cleaner struct {
	root   string
	logger *slog.Logger
}

// NewCleaner constructs a cleaner bound to the configured workspace root.
func NewCleaner(cfg *config.Config, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		root:   cfg.Paths.WorkspaceDir,
		logger: logging.NewComponentLogger(logger, "workspace"),
	}
}

// Cleanup removes the working directory. An empty or already-missing path is
// a no-op.
func (c *Cleaner) Cleanup(ctx context.Context, workdir string) error {
	workdir = strings.TrimSpace(workdir)
	if workdir == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCleanup, "cleanup", "", workdir, err)
	}

	inside, err := underRoot(c.root, workdir)
	if err != nil {
		return services.Wrap(services.ErrCleanup, "cleanup", "resolve path", workdir, err)
	}
	if !inside {
		return services.Wrap(services.ErrCleanup, "cleanup", "", "refusing to remove path outside workspace: "+workdir, nil)
	}

	if _, err := os.Stat(workdir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(workdir); err != nil {
		return services.Wrap(services.ErrCleanup, "cleanup", "remove workdir", workdir, err)
	}
	c.logger.Debug("workspace removed", logging.String("workdir", workdir))
	return nil
}

func underRoot(root, target string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return false, err
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".", nil
}
