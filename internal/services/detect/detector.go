package detect

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"convoy/internal/logging"
	"convoy/internal/services"
)

// FrameworkUnknown is reported when no marker file matches.
const FrameworkUnknown = "unknown"

// marker maps a filename found at the working tree root to a framework name.
// Order matters: the first match wins, so build systems outrank generic
// packaging files.
var markers = []struct {
	file      string
	framework string
}{
	{"go.mod", "go"},
	{"pom.xml", "maven"},
	{"build.gradle", "gradle"},
	{"build.gradle.kts", "gradle"},
	{"Cargo.toml", "rust"},
	{"Gemfile", "ruby"},
	{"package.json", "node"},
	{"pyproject.toml", "python"},
	{"requirements.txt", "python"},
	{"Dockerfile", "docker"},
}

// Detector inspects a cloned working tree and reports the framework marker.
// It satisfies the transform collaborator contract, so it ships as the default
// transformer when no migration-specific one is wired in.
type Detector struct {
	logger *slog.Logger
}

// NewDetector constructs a detector. A nil logger falls back to a no-op logger.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{logger: logging.NewComponentLogger(logger, "detect")}
}

// Transform scans the working directory for framework markers.
func (d *Detector) Transform(ctx context.Context, workdir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	workdir = strings.TrimSpace(workdir)
	if workdir == "" {
		return "", services.Wrap(services.ErrTransform, "transform", "detect", "working directory is empty", nil)
	}
	if info, err := os.Stat(workdir); err != nil || !info.IsDir() {
		return "", services.Wrap(services.ErrTransform, "transform", "detect", "working directory missing: "+workdir, err)
	}

	framework := Detect(workdir)
	d.logger.Info("framework detected",
		logging.String(logging.FieldEventType, "framework_detected"),
		logging.String("framework", framework),
		logging.String("workdir", workdir))
	return framework, nil
}

// Detect reports the framework marker for a working tree root, or
// FrameworkUnknown when nothing matches.
func Detect(workdir string) string {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(workdir, m.file)); err == nil {
			return m.framework
		}
	}
	return FrameworkUnknown
}

// DisplayName renders a framework marker for human-facing output.
func DisplayName(framework string) string {
	framework = strings.TrimSpace(framework)
	if framework == "" || framework == FrameworkUnknown {
		return "Unknown"
	}
	return cases.Title(language.Und).String(framework)
}
