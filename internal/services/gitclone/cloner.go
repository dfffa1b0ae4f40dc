package gitclone

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"convoy/internal/config"
	"convoy/internal/pipeline"
	"convoy/internal/services"
)

// Executor abstracts command execution for the cloner.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, dir string) ([]byte, error)
}

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, dir string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Cloner fetches repositories into per-item working directories under the
// configured workspace.
type Cloner struct {
	binary       string
	workspaceDir string
	defaultDepth int
	exec         Executor
}

// NewCloner constructs a cloner for the configured git binary.
func NewCloner(cfg *config.Config) *Cloner {
	return newCloner(cfg, commandExecutor{})
}

// NewClonerWithExecutor allows injecting a custom executor for testing.
func NewClonerWithExecutor(cfg *config.Config, exec Executor) *Cloner {
	if exec == nil {
		exec = commandExecutor{}
	}
	return newCloner(cfg, exec)
}

func newCloner(cfg *config.Config, exec Executor) *Cloner {
	binary := strings.TrimSpace(cfg.Git.Binary)
	if binary == "" {
		binary = "git"
	}
	return &Cloner{
		binary:       binary,
		workspaceDir: cfg.Paths.WorkspaceDir,
		defaultDepth: cfg.Git.CloneDepth,
		exec:         exec,
	}
}

// Clone fetches the repository into a fresh working directory and returns its
// path. The directory is created before the clone so cleanup always has a
// target, even when git fails midway.
func (c *Cloner) Clone(ctx context.Context, repo pipeline.Repo, creds pipeline.Credentials) (string, error) {
	target := strings.TrimSpace(repo.URL)
	if target == "" {
		return "", services.Wrap(services.ErrClone, "clone", "", "repository url is empty", nil)
	}

	workdir := filepath.Join(c.workspaceDir, workdirName(target))
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", services.Wrap(services.ErrClone, "clone", "create workdir", workdir, err)
	}

	cloneURL, err := authenticatedURL(target, creds)
	if err != nil {
		return workdir, services.Wrap(services.ErrClone, "clone", "parse url", target, err)
	}

	args := []string{"clone", "--single-branch"}
	if depth := c.depth(repo); depth > 0 {
		args = append(args, "--depth", strconv.Itoa(depth))
	}
	if branch := strings.TrimSpace(repo.Branch); branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, cloneURL, workdir)

	output, err := c.exec.Run(ctx, c.binary, args, "")
	if err != nil {
		// Stderr may echo the clone URL; keep credentials out of the error.
		detail := sanitize(strings.TrimSpace(string(output)), creds.Token)
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return workdir, services.Wrap(services.ErrClone, "clone", "git clone", detail, cause)
	}
	return workdir, nil
}

func (c *Cloner) depth(repo pipeline.Repo) int {
	if repo.Depth > 0 {
		return repo.Depth
	}
	return c.defaultDepth
}

// workdirName yields a unique directory name that still hints at the repo.
func workdirName(repoURL string) string {
	base := strings.TrimSuffix(path.Base(repoURL), ".git")
	if base == "" || base == "." || base == "/" {
		base = "repo"
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString())
}

// authenticatedURL injects the resolved token as userinfo for https remotes.
// Non-https remotes (ssh, local paths) pass through untouched.
func authenticatedURL(repoURL string, creds pipeline.Credentials) (string, error) {
	token := strings.TrimSpace(creds.Token)
	if token == "" {
		return repoURL, nil
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return repoURL, nil
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}

func sanitize(detail, token string) string {
	if strings.TrimSpace(token) == "" {
		return detail
	}
	return strings.ReplaceAll(detail, token, "***")
}
