package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the command tree with a socket that never answers, which
// forces queue commands onto the direct database path.
func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, base string) string {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nworkspace_dir = %q\nlog_dir = %q\n",
		filepath.Join(base, "workspace"),
		filepath.Join(base, "logs"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func deadSocket(base string) string {
	return filepath.Join(base, "missing.sock")
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}

func TestAddAndListDirectStore(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)
	socket := deadSocket(base)

	out, _, err := runCLI(t, []string{"add", "https://github.com/acme/billing.git"}, socket, configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Queued billing")

	out, _, err = runCLI(t, []string{"queue", "list"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "billing")
	requireContains(t, out, "pending")

	out, _, err = runCLI(t, []string{"queue", "status"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")
}

func TestQueueCancelAndClearDirectStore(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)
	socket := deadSocket(base)

	if _, _, err := runCLI(t, []string{"add", "https://github.com/acme/billing.git"}, socket, configPath); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := runCLI(t, []string{"add", "https://github.com/acme/ledger.git"}, socket, configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "cancel", "1"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue cancel: %v", err)
	}
	requireContains(t, out, "Cancelled item 1")

	out, _, err = runCLI(t, []string{"queue", "clear"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Removed 2 item(s)")
}

func TestQueueShowReportsDetails(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)
	socket := deadSocket(base)

	if _, _, err := runCLI(t, []string{"add", "https://github.com/acme/billing.git", "--priority", "3"}, socket, configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "show", "1"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "Item 1: billing")
	requireContains(t, out, "Priority:  3")
	requireContains(t, out, "https://github.com/acme/billing.git")
}

func TestProcessRequiresDaemon(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	_, _, err := runCLI(t, []string{"process"}, deadSocket(base), configPath)
	if err == nil {
		t.Fatal("expected process to fail without a daemon")
	}
	requireContains(t, err.Error(), "connect to daemon")
}

func TestConfigInitWritesSample(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "convoy", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, deadSocket(base), "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}
}
