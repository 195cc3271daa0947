package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/icco/chordglide/internal/config"
	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/voicemap"
)

var (
	debug      bool
	configPath string

	// logger is safe to use before initLogger runs.
	logger = slog.Default()
	cfg    = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "chordglide",
	Short: "Turn chord changes into per-voice MPE pitch glides",
	Long: `chordglide listens for chords on a MIDI stream and, whenever the chord changes,
slides every voice from its old note to a note of the new chord using MPE:
each voice gets its own member channel and its own pitch bend.

Output is delayed by the glide time so every glide lands exactly when the new
chord was played.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		initLogger(os.Stderr, debug)
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/chordglide/config.json)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger configures the shared slog logger and makes it the default.
func initLogger(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
	slog.SetDefault(logger)
}

func loadConfig(cmd *cobra.Command) error {
	if configPath == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		configPath = p
	}

	c, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	cfg = c
	if err := applyFlags(cmd); err != nil {
		return err
	}
	return cfg.Validate()
}

// Engine flags shared by live and render.
var flags struct {
	glideMs   float64
	bendRange float64
	strategy  string
	seed      int64
	rate      float64
	block     int
	singles   string
	noPass    bool
}

func addEngineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64VarP(&flags.glideMs, "glide", "g", 200, "Glide time in milliseconds (10-2000)")
	f.Float64VarP(&flags.bendRange, "bend-range", "b", 12, "Pitch bend range of the receiving synth in semitones")
	f.StringVarP(&flags.strategy, "strategy", "s", "nearest", "Voice mapping: nearest or random")
	f.Int64Var(&flags.seed, "seed", 0, "Seed for the random strategy (0: clock)")
	f.Float64Var(&flags.rate, "rate", 48000, "Sample rate of the engine clock")
	f.IntVar(&flags.block, "block", 256, "Samples per processing block")
	f.StringVar(&flags.singles, "singles", "passthrough", "Single notes: passthrough or drop")
	f.BoolVar(&flags.noPass, "no-passthrough", false, "Drop messages other than notes")
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Lookup("glide") == nil {
		return nil
	}
	if f.Changed("glide") {
		cfg.GlideMs = flags.glideMs
	}
	if f.Changed("bend-range") {
		cfg.BendRange = flags.bendRange
	}
	if f.Changed("strategy") {
		k, err := voicemap.ParseKind(flags.strategy)
		if err != nil {
			return err
		}
		cfg.Strategy = k
	}
	if f.Changed("seed") {
		cfg.Seed = flags.seed
	}
	if f.Changed("rate") {
		cfg.SampleRate = flags.rate
	}
	if f.Changed("block") {
		cfg.BlockSize = flags.block
	}
	if f.Changed("singles") {
		if _, err := engine.ParseSinglePolicy(flags.singles); err != nil {
			return err
		}
		cfg.SingleNotes = flags.singles
	}
	if f.Changed("no-passthrough") {
		cfg.PassthroughOther = !flags.noPass
	}
	return nil
}

// newEngine builds an engine from the config.
func newEngine(log *slog.Logger, opts ...engine.Option) *engine.Engine {
	opts = append(cfg.EngineOptions(), append([]engine.Option{engine.WithLogger(log)}, opts...)...)
	e := engine.New(opts...)
	e.SetParams(cfg.Params())
	return e
}
