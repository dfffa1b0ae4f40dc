// Package deps checks availability of the external binaries migrations
// depend on.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"convoy/internal/config"
)

// Requirement defines an external dependency Convoy relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements returns the external binaries the configured setup needs.
func Requirements(cfg *config.Config) []Requirement {
	binary := "git"
	if cfg != nil && strings.TrimSpace(cfg.Git.Binary) != "" {
		binary = cfg.Git.Binary
	}
	return []Requirement{
		{
			Name:        "Git",
			Command:     binary,
			Description: "clones repositories queued for migration",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
