package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the playback queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, ctx)
		},
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queue items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, ctx)
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "add <url>",
		Short: "Add a video to the queue by URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := client.QueueAdd(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %q (%s)\n", item.Video.Title, item.ID)
			return nil
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a queue item and its media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.QueueRemove(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed.")
			return nil
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "move <id> <index>",
		Short: "Move a queue item to a new position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return client.QueueMove(args[0], index)
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "play <id>",
		Short: "Play a ready queue item now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return client.QueuePlay(args[0])
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Play the next ready item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return client.PlayNext()
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "clear-played",
		Short: "Remove played items from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return client.ClearPlayed()
		},
	})

	return queueCmd
}

func runQueueList(cmd *cobra.Command, ctx *commandContext) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	items, err := client.QueueList()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "Queue is empty.")
		return nil
	}

	rows := make([][]string, 0, len(items))
	for i, item := range items {
		note := formatProgress(item)
		if item.Status.IsTerminal() && item.Error != "" {
			note = truncate(item.Error, 40)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			item.ID,
			truncate(item.Video.Title, 48),
			formatSeconds(item.Video.Duration),
			statusLabel(item.Status),
			string(item.Origin),
			note,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]col{
			{title: "#", right: true},
			{title: "ID"},
			{title: "Title"},
			{title: "Length", right: true},
			{title: "Status"},
			{title: "Origin"},
			{title: "Note"},
		},
		rows,
	))
	return nil
}
