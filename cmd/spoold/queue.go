package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/granobox/spool/internal/db"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage a running daemon's queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueItemsCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := ctx.client().QueueStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusTable(stats))
			return nil
		},
	}
}

func newQueueItemsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List the most recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := ctx.client().Items(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			fmt.Fprintln(out, itemsTable(items))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", db.DefaultRecentLimit, "Maximum number of jobs to show")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove printed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := ctx.client().Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished jobs\n", removed)
			return nil
		},
	}
}
