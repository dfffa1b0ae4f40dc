package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"convoy/internal/ipc"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var maxItems int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Start draining pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Process(maxItems)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.AlreadyRunning {
					fmt.Fprintln(stdout, "A batch is already running; joining it")
					return nil
				}
				if maxItems > 0 {
					fmt.Fprintf(stdout, "Batch started (up to %d item(s))\n", maxItems)
				} else {
					fmt.Fprintln(stdout, "Batch started")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&maxItems, "max-items", "n", 0, "Stop after claiming this many items (0 drains everything)")
	return cmd
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause dispatch of new migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Dispatch paused; in-flight migrations keep running")
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume dispatch of new migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Resume(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Dispatch resumed")
				return nil
			})
		},
	}
}

func newSetConcurrencyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-concurrency <limit>",
		Short: "Adjust how many migrations run at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid concurrency limit %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetConcurrency(limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Concurrency limit set to %d\n", resp.Limit)
				return nil
			})
		},
	}
}
