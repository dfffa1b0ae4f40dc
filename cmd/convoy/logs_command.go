package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"convoy/internal/logs"
)

const followWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFilePath()
			stdout := cmd.OutOrStdout()

			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(stdout, line)
			}
			if !follow {
				if len(result.Lines) == 0 {
					fmt.Fprintf(stdout, "No log output at %s\n", path)
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), path, logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   followWait,
				})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range next.Lines {
					fmt.Fprintln(stdout, line)
				}
				offset = next.Offset
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines")
	return cmd
}
