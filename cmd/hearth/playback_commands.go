package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPlaybackCommand(ctx *commandContext) *cobra.Command {
	playbackCmd := &cobra.Command{
		Use:   "playback",
		Short: "Control playback on the connected receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlaybackStatus(cmd, ctx)
		},
	}

	for _, action := range []struct {
		use, short string
	}{
		{"play", "Resume paused playback"},
		{"pause", "Pause playback"},
		{"stop", "Stop playback"},
	} {
		name := action.use
		playbackCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := ctx.client()
				if err != nil {
					return err
				}
				return client.PlaybackAction(name)
			},
		})
	}

	playbackCmd.AddCommand(&cobra.Command{
		Use:   "seek <seconds>",
		Short: "Seek to an absolute position in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid position %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return client.Seek(seconds)
		},
	})

	playbackCmd.AddCommand(&cobra.Command{
		Use:   "volume <level>",
		Short: "Set receiver volume (0.0 to 1.0)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid volume %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return client.SetVolume(level)
		},
	})

	return playbackCmd
}

func runPlaybackStatus(cmd *cobra.Command, ctx *commandContext) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	st, err := client.Playback()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !st.Connected {
		fmt.Fprintln(out, "Not connected to a receiver.")
		return nil
	}
	fmt.Fprintf(out, "Device: %s\n", st.DeviceName)
	fmt.Fprintf(out, "State:  %s\n", st.State)
	if st.Title != "" {
		fmt.Fprintf(out, "Title:  %s\n", st.Title)
		fmt.Fprintf(out, "Time:   %s / %s\n", formatSeconds(st.CurrentTime), formatSeconds(st.Duration))
	}
	fmt.Fprintf(out, "Volume: %.0f%%", st.Volume*100)
	if st.Muted {
		fmt.Fprint(out, " (muted)")
	}
	fmt.Fprintln(out)
	return nil
}
