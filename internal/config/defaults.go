package config

const (
	defaultWorkspaceDir       = "~/.local/share/convoy/workspace"
	defaultLogDir             = "~/.local/share/convoy/logs"
	defaultGitBinary          = "git"
	defaultGitCloneDepth      = 1
	defaultGitCloneTimeout    = 600
	defaultMaxConcurrency     = 3
	defaultItemTimeout        = 600
	defaultPollInterval       = 2
	defaultErrorRetryInterval = 10
	defaultShutdownGrace      = 30
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// MaxConcurrencyLimit is the upper bound accepted for queue.max_concurrency.
const MaxConcurrencyLimit = 10

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
		},
		Git: Git{
			Binary:       defaultGitBinary,
			CloneDepth:   defaultGitCloneDepth,
			CloneTimeout: defaultGitCloneTimeout,
		},
		Queue: Queue{
			MaxConcurrency:     defaultMaxConcurrency,
			ItemTimeout:        defaultItemTimeout,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ShutdownGrace:      defaultShutdownGrace,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Batch:          true,
			Items:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
