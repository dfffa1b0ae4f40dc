package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"convoy/internal/ipc"
	"convoy/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var repoName string
	var branch string
	var depth int
	var tokenEnv string
	var priority int

	cmd := &cobra.Command{
		Use:   "add <repo-url> [repo-url...]",
		Short: "Add repositories to the migration queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if repoName != "" && len(args) > 1 {
				return errors.New("--name applies to a single repository; drop it when adding several")
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				stdout := cmd.OutOrStdout()
				for _, repoURL := range args {
					repoURL = strings.TrimSpace(repoURL)
					if repoURL == "" {
						continue
					}

					var item ipc.QueueItem
					if client != nil {
						resp, err := client.Enqueue(ipc.EnqueueRequest{
							RepoURL:  repoURL,
							RepoName: repoName,
							Branch:   branch,
							Depth:    depth,
							TokenEnv: tokenEnv,
							Priority: priority,
						})
						if err != nil {
							return err
						}
						item = resp.Item
					} else {
						created, err := store.Enqueue(cmd.Context(), repoURL, repoName, queue.MigrationConfig{
							Branch:     branch,
							CloneDepth: depth,
							TokenEnv:   tokenEnv,
						}, priority)
						if err != nil {
							return err
						}
						item = ipc.FromQueueItem(created)
					}
					fmt.Fprintf(stdout, "Queued %s as item %d (priority %d)\n", item.RepoName, item.ID, item.Priority)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&repoName, "name", "", "Display name for the repository (inferred from the URL when omitted)")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to clone instead of the remote default")
	cmd.Flags().IntVar(&depth, "depth", 0, "Clone depth (0 uses the configured default)")
	cmd.Flags().StringVar(&tokenEnv, "token-env", "", "Environment variable holding the clone access token")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Queue priority (higher dispatches first)")
	return cmd
}
