package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"convoy/internal/ipc"
	"convoy/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the migration queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueCancelAllCommand(ctx))
	queueCmd.AddCommand(newQueueReorderCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				stats := make(map[string]int)
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					stats = status.QueueStats
				} else {
					raw, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					for status, count := range raw {
						stats[string(status)] = count
					}
				}

				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var items []ipc.QueueItem
				if client != nil {
					resp, err := client.QueueList(listStatuses)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					var filters []queue.Status
					for _, raw := range listStatuses {
						if parsed, ok := queue.ParseStatus(raw); ok {
							filters = append(filters, parsed)
						}
					}
					stored, err := store.List(cmd.Context(), filters...)
					if err != nil {
						return err
					}
					for _, item := range stored {
						items = append(items, ipc.FromQueueItem(item))
					}
				}

				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Repository", "Status", "Priority", "Framework", "Created"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a queue item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.QueueItem
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					stored, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if stored == nil {
						return fmt.Errorf("queue item %d not found", id)
					}
					item = ipc.FromQueueItem(stored)
				}

				for _, line := range buildQueueItemLines(item) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a queue item that is not processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var removed bool
				if client != nil {
					resp, err := client.Remove(id)
					if err != nil {
						return err
					}
					removed = resp.Removed
				} else {
					removed, err = store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Item %d was not removed\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed item %d\n", id)
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var cancelled bool
				if client != nil {
					resp, err := client.Cancel(id)
					if err != nil {
						return err
					}
					cancelled = resp.Cancelled
				} else {
					cancelled, err = store.CancelPending(cmd.Context(), id)
					if err != nil {
						return err
					}
				}
				if !cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Item %d was not pending; nothing cancelled\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled item %d\n", id)
				return nil
			})
		},
	}
}

func newQueueCancelAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel every pending queue item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var cancelled int64
				if client != nil {
					resp, callErr := client.CancelAll()
					if callErr != nil {
						return callErr
					}
					cancelled = resp.Cancelled
				} else {
					items, err := store.CancelAllPending(cmd.Context())
					if err != nil {
						return err
					}
					cancelled = int64(len(items))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d pending item(s)\n", cancelled)
				return nil
			})
		},
	}
}

func newQueueReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id> [id...]",
		Short: "Move the named pending items to the front, in the given order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				if client != nil {
					if _, err := client.Reorder(ids); err != nil {
						return err
					}
				} else if err := store.Reorder(cmd.Context(), ids); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reordered %d item(s)\n", len(ids))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue failed items (all failed items when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				if client != nil {
					resp, callErr := client.QueueRetry(ids)
					if callErr != nil {
						return callErr
					}
					updated = resp.Updated
				} else {
					updated, err = store.RetryFailed(cmd.Context(), ids...)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d item(s)\n", updated)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				var err error
				switch {
				case clearCompleted:
					if client != nil {
						resp, callErr := client.QueueClearCompleted()
						if callErr != nil {
							return callErr
						}
						removed = resp.Removed
					} else if removed, err = store.ClearCompleted(cmd.Context()); err != nil {
						return err
					}
				case clearFailed:
					if client != nil {
						resp, callErr := client.QueueClearFailed()
						if callErr != nil {
							return callErr
						}
						removed = resp.Removed
					} else if removed, err = store.ClearFailed(cmd.Context()); err != nil {
						return err
					}
				default:
					if client != nil {
						resp, callErr := client.QueueClear()
						if callErr != nil {
							return callErr
						}
						removed = resp.Removed
					} else if removed, err = store.Clear(cmd.Context()); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show aggregate queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var health queue.HealthSummary
				if client != nil {
					resp, err := client.QueueHealth()
					if err != nil {
						return err
					}
					health = queue.HealthSummary(*resp)
				} else {
					var err error
					health, err = store.Health(cmd.Context())
					if err != nil {
						return err
					}
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range renderSectionHeader("Queue Health", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Total", statusInfo, strconv.Itoa(health.Total), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Pending", statusInfo, strconv.Itoa(health.Pending), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Processing", statusInfo, strconv.Itoa(health.Processing), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Completed", statusOK, strconv.Itoa(health.Completed), colorize))
				failedKind := statusOK
				if health.Failed > 0 {
					failedKind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine("Failed", failedKind, strconv.Itoa(health.Failed), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Cancelled", statusInfo, strconv.Itoa(health.Cancelled), colorize))
				return nil
			})
		},
	}
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid queue item id %q", raw)
	}
	return id, nil
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseItemID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
