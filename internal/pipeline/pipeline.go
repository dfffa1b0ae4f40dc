package pipeline

import (
	"context"
	"time"

	"convoy/internal/queue"
)

// Repo identifies the source repository a migration operates on.
type Repo struct {
	URL    string
	Branch string
	Depth  int
}

// Credentials carries the secret material resolved for a single clone. Values
// are resolved from the environment at clone time and never persisted.
type Credentials struct {
	Token string
}

// Cloner produces a local working directory for a repository.
type Cloner interface {
	Clone(ctx context.Context, repo Repo, creds Credentials) (workdir string, err error)
}

// Transformer applies the migration to a cloned working directory and reports
// the framework marker it detected.
type Transformer interface {
	Transform(ctx context.Context, workdir string) (framework string, err error)
}

// Cleaner tears down a working directory. Implementations treat an empty or
// missing path as a no-op.
type Cleaner interface {
	Cleanup(ctx context.Context, workdir string) error
}

// ItemResult summarizes one finished item for batch reporting.
type ItemResult struct {
	ItemID    int64
	RepoName  string
	Status    queue.Status
	Framework string
	Category  string
	Err       error
	Elapsed   time.Duration
}

// Succeeded reports whether the item reached completed status.
func (r ItemResult) Succeeded() bool {
	return r.Status == queue.StatusCompleted
}
