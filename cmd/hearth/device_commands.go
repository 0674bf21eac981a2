package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hearth/internal/sink"
)

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Manage the receiver connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			connected, device, err := client.Device()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !connected {
				fmt.Fprintln(out, "Not connected to a receiver.")
				return nil
			}
			fmt.Fprintf(out, "Connected to %s (%s:%d)\n", device.Name, device.Host, device.Port)
			return nil
		},
	}

	var name string
	var port int
	connectCmd := &cobra.Command{
		Use:   "connect <host>",
		Short: "Connect to a cast receiver by address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			st, err := client.DeviceConnect(sink.Device{
				Name: name,
				Host: args[0],
				Port: port,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s.\n", st.DeviceName)
			return nil
		},
	}
	connectCmd.Flags().StringVar(&name, "name", "", "Friendly device name")
	connectCmd.Flags().IntVar(&port, "port", 8009, "Receiver port")
	deviceCmd.AddCommand(connectCmd)

	deviceCmd.AddCommand(&cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect from the receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.DeviceDisconnect(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected.")
			return nil
		},
	})

	return deviceCmd
}
