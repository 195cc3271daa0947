package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/icco/chordglide/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <in.mid> <out.mid>",
	Short: "Render a MIDI file through the glide engine",
	Long: `Render a Standard MIDI File offline.

Every track of the input is merged and played through the engine with the
same block processing as live mode. The output is a single-track file with the
MPE configuration at the start.

Example:
  chordglide render progression.mid glided.mid --glide 400 --strategy random --seed 7
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.With("run", uuid.NewString())
		e := newEngine(log)

		stats, err := render.File(log, e, render.Options{
			SampleRate: cfg.SampleRate,
			BlockSize:  cfg.BlockSize,
		}, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chords, %d transitions, %d dropped voices\n",
			args[1], stats.Chords, stats.Transitions, stats.DroppedVoices)
		return nil
	},
}

func init() {
	addEngineFlags(renderCmd)
	rootCmd.AddCommand(renderCmd)
}
