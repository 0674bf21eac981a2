package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and playback status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			st, err := client.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:   running\n")
			fmt.Fprintf(out, "Queue:    %d items (%d active)\n", st.Queue.Total, st.Queue.Active)
			if st.Playback.Connected {
				fmt.Fprintf(out, "Receiver: %s (%s)\n", st.Playback.DeviceName, st.Playback.State)
				if st.Playback.Title != "" {
					fmt.Fprintf(out, "Playing:  %s  [%s / %s]\n",
						st.Playback.Title,
						formatSeconds(st.Playback.CurrentTime),
						formatSeconds(st.Playback.Duration))
				}
			} else {
				fmt.Fprintln(out, "Receiver: not connected")
			}
			if st.Curation != nil {
				state := "stopped"
				if st.Curation.Running {
					state = fmt.Sprintf("running (%s)", st.Curation.Phase)
				}
				fmt.Fprintf(out, "Curation: %s, %d videos added\n", state, st.Curation.VideosAdded)
				if st.Curation.LastError != "" {
					fmt.Fprintf(out, "          last error: %s\n", st.Curation.LastError)
				}
			}
			return nil
		},
	}
}
