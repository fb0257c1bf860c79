package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lokutor-ai/companion/pkg/audio"
)

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List microphones and their indexes for audio_input.mic_device_index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.Devices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No microphones found.")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %2d  %s\n", marker, d.Index, d.Name)
			}
			return nil
		},
	}
}
