package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCurateCommand(ctx *commandContext) *cobra.Command {
	curateCmd := &cobra.Command{
		Use:   "curate",
		Short: "Inspect and trigger automatic curation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			st, err := client.Curation()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			state := "stopped"
			if st.Running {
				state = "running"
			}
			fmt.Fprintf(out, "Curation: %s\n", state)
			fmt.Fprintf(out, "Phase:    %s\n", st.Phase)
			if st.CurrentConcept != "" {
				fmt.Fprintf(out, "Concept:  %s\n", st.CurrentConcept)
			}
			if st.LastRun != nil {
				fmt.Fprintf(out, "Last run: %s\n", st.LastRun.Local().Format("2006-01-02 15:04:05"))
			}
			if st.LastError != "" {
				fmt.Fprintf(out, "Result:   %s\n", st.LastError)
			}
			fmt.Fprintf(out, "Added:    %d videos\n", st.VideosAdded)
			return nil
		},
	}

	curateCmd.AddCommand(&cobra.Command{
		Use:   "trigger",
		Short: "Run a curation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.CurationTrigger(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Curation pass started.")
			return nil
		},
	})

	return curateCmd
}
