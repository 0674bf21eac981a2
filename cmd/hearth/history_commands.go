package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently played videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entries, err := client.History(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No playback history.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.PlayedAt.Local().Format("2006-01-02 15:04"),
					entry.VideoID,
					truncate(entry.Title, 60),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]col{{title: "Played"}, {title: "Video ID"}, {title: "Title"}},
				rows,
			))
			return nil
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 for all)")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all playback history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.HistoryClear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	})

	return historyCmd
}
