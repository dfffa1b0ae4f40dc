package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"convoy/internal/config"
	"convoy/internal/ipc"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
}

// StartState describes the outcome of a start request.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a detached daemon process using the CLI's hidden daemon
// subcommand.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon when no socket answers and reports the
// resulting state.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	socketPath := cfg.SocketPath()

	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if status, statusErr := client.Status(); statusErr == nil && status.Running {
			return StartResult{State: StartStateAlreadyRunning}, nil
		}
		// Stale socket from an unclean shutdown; fall through and relaunch.
		client.Close()
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()

	if status, statusErr := client.Status(); statusErr == nil && status.Running {
		return StartResult{State: StartStateStarted, Launched: true}, nil
	}
	return StartResult{State: StartStateStarted, Launched: true, Message: "daemon launched, start pending"}, nil
}

// Stop asks a running daemon to shut down, falling back to a signal when the
// socket does not answer. It reports whether anything was stopped.
func Stop(cfg *config.Config, waitTimeout time.Duration) (bool, error) {
	socketPath := cfg.SocketPath()

	if client, err := ipc.Dial(socketPath); err == nil {
		_, stopErr := client.Stop()
		client.Close()
		if stopErr == nil {
			waitForExit(cfg, waitTimeout)
			return true, nil
		}
	}

	pid, err := readPID(cfg.PIDPath())
	if err != nil {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = os.Remove(cfg.PIDPath())
			return false, nil
		}
		return false, fmt.Errorf("signal daemon pid %d: %w", pid, err)
	}
	waitForExit(cfg, waitTimeout)
	return true, nil
}

// Running reports whether a daemon currently answers on the IPC socket.
func Running(cfg *config.Config) bool {
	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		return false
	}
	defer client.Close()
	status, err := client.Status()
	return err == nil && status.Running
}

func waitForExit(cfg *config.Config, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(cfg.SocketPath())
		if err != nil {
			return
		}
		client.Close()
		time.Sleep(200 * time.Millisecond)
	}
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}
