package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"convoy/internal/daemonctl"
	"convoy/internal/deps"
	"convoy/internal/ipc"
	"convoy/internal/queue"
)

const daemonStartTimeout = 10 * time.Second

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the convoy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}

			opts := daemonctl.LaunchOptions{}
			if ctx.configFlag != nil {
				opts.ConfigPath = *ctx.configFlag
			}
			result, err := daemonctl.EnsureStarted(cfg, exe, opts, daemonStartTimeout)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the convoy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stopped, err := daemonctl.Stop(cfg, 5*time.Second)
			if err != nil {
				return err
			}
			if !stopped {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the convoy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if _, err := daemonctl.Stop(cfg, 5*time.Second); err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			opts := daemonctl.LaunchOptions{}
			if ctx.configFlag != nil {
				opts.ConfigPath = *ctx.configFlag
			}
			if _, err := daemonctl.EnsureStarted(cfg, exe, opts, daemonStartTimeout); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCommand(ctx, cmd)
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func runStatusCommand(ctx *commandContext, cmd *cobra.Command) error {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
		for _, line := range renderSectionHeader("Dependencies", colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, dep := range deps.CheckBinaries(deps.Requirements(ctx.configValue())) {
			kind := statusOK
			detail := dep.Command
			if !dep.Available {
				kind = statusError
				detail = dep.Detail
			}
			fmt.Fprintln(stdout, renderStatusLine(dep.Name, kind, detail, colorize))
		}
		fmt.Fprintln(stdout)

		for _, line := range renderSectionHeader("Daemon", colorize) {
			fmt.Fprintln(stdout, line)
		}

		stats := make(map[string]int)
		if client != nil {
			status, err := client.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, renderStatusLine("Running", statusOK, fmt.Sprintf("pid %d", status.PID), colorize))
			pausedKind := statusOK
			if status.Paused {
				pausedKind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Paused", pausedKind, yesNo(status.Paused), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Batch active", statusInfo, yesNo(status.BatchActive), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Concurrency", statusInfo,
				fmt.Sprintf("%d in flight / %d max", status.InFlight, status.MaxConcurrency), colorize))
			lastProcessed := "never"
			if status.LastProcessedAt != nil {
				lastProcessed = formatTimestamp(*status.LastProcessedAt)
			}
			fmt.Fprintln(stdout, renderStatusLine("Last processed", statusInfo, lastProcessed, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
			stats = status.QueueStats
		} else {
			fmt.Fprintln(stdout, renderStatusLine("Running", statusWarn, "daemon is not running", colorize))
			raw, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			for status, count := range raw {
				stats[string(status)] = count
			}
		}

		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Queue", colorize) {
			fmt.Fprintln(stdout, line)
		}
		rows := buildQueueStatusRows(stats)
		if len(rows) == 0 {
			fmt.Fprintln(stdout, renderStatusLine("Items", statusInfo, "queue is empty", colorize))
			return nil
		}
		for _, row := range rows {
			kind := statusInfo
			switch row[0] {
			case string(queue.StatusCompleted):
				kind = statusOK
			case string(queue.StatusFailed):
				kind = statusError
			}
			fmt.Fprintln(stdout, renderStatusLine(row[0], kind, row[1], colorize))
		}
		total := 0
		for _, count := range stats {
			total += count
		}
		fmt.Fprintln(stdout, renderStatusLine("Total", statusInfo, strconv.Itoa(total), colorize))
		return nil
	})
}
