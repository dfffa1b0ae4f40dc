package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGit(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateGit() error {
	if c.Git.CloneDepth < 0 {
		return errors.New("git.clone_depth must not be negative")
	}
	if c.Git.CloneTimeout <= 0 {
		return errors.New("git.clone_timeout must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxConcurrency < 1 || c.Queue.MaxConcurrency > MaxConcurrencyLimit {
		return fmt.Errorf("queue.max_concurrency must be between 1 and %d", MaxConcurrencyLimit)
	}
	if c.Queue.ItemTimeout <= 0 {
		return errors.New("queue.item_timeout must be positive")
	}
	if c.Queue.PollInterval <= 0 {
		return errors.New("queue.poll_interval must be positive")
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		return errors.New("queue.error_retry_interval must be positive")
	}
	if c.Queue.ShutdownGrace < 0 {
		return errors.New("queue.shutdown_grace must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
