package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/icco/chordglide/internal/host"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI input and output ports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ins, outs, err := host.PortNames()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Inputs:")
		for i, name := range ins {
			fmt.Fprintf(out, "  %d: %s\n", i, name)
		}
		fmt.Fprintln(out, "Outputs:")
		for i, name := range outs {
			fmt.Fprintf(out, "  %d: %s\n", i, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
