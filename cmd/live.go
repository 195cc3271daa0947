package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/icco/chordglide/internal/audio"
	"github.com/icco/chordglide/internal/control"
	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/host"
	"github.com/icco/chordglide/internal/tui"
)

var live struct {
	in       string
	out      string
	name     string
	httpAddr string
	monitor  bool
	audio    bool
	wave     string
	volume   float64
	window   float64
	logFile  string
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the glide engine between MIDI ports",
	Long: `Run the glide engine in real time.

Notes arrive on the input port (or a virtual input) and MPE output goes to the
output port (or a virtual output). The receiving synth should be in MPE mode,
lower zone, with the same pitch bend range as --bend-range.

Example:
  chordglide live --in "KeyStep" --out "IAC Driver Bus 1" --glide 250 --tui
  chordglide live --name "Chord Glide" --http :8090 --audio
`,
	RunE: runLive,
}

func init() {
	f := liveCmd.Flags()
	f.StringVar(&live.in, "in", "", "Input port name (default: virtual input)")
	f.StringVar(&live.out, "out", "", "Output port name (default: virtual output)")
	f.StringVarP(&live.name, "name", "n", "", "Name for virtual ports")
	f.StringVar(&live.httpAddr, "http", "", "Serve the control API on this address, e.g. :8090")
	f.BoolVar(&live.monitor, "tui", false, "Show the live monitor")
	f.BoolVar(&live.audio, "audio", false, "Also play the output through the built-in synth")
	f.StringVar(&live.wave, "wave", "triangle", "Built-in synth wave: sine, square, saw or triangle")
	f.Float64Var(&live.volume, "volume", 0.3, "Built-in synth volume (0-1)")
	f.Float64Var(&live.window, "chord-window", 15, "Milliseconds to wait for the rest of a chord after a note-on")
	f.StringVar(&live.logFile, "log", "chordglide.log", "Log file used while the monitor is shown")
	addEngineFlags(liveCmd)
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	if f.Changed("in") {
		cfg.InPort = live.in
	}
	if f.Changed("out") {
		cfg.OutPort = live.out
	}
	if f.Changed("name") {
		cfg.VirtualName = live.name
	}
	if f.Changed("http") {
		cfg.HTTPAddr = live.httpAddr
	}
	if f.Changed("wave") {
		cfg.SynthWave = live.wave
	}
	if f.Changed("volume") {
		cfg.SynthVolume = live.volume
	}
	if f.Changed("chord-window") {
		cfg.ChordWindowMs = live.window
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if live.monitor {
		lf, err := os.OpenFile(live.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		initLogger(lf, debug)
	}

	runID := uuid.New()
	log := logger.With("run", runID.String())

	ports, err := host.OpenPorts(cfg.InPort, cfg.OutPort, cfg.VirtualName)
	if err != nil {
		return err
	}
	defer ports.Close()

	store := host.NewStore(cfg.Params())
	e := newEngine(log, engine.WithLatencyFunc(func(samples int) {
		log.Info("engine: latency", "samples", samples, "ms", float64(samples)/cfg.SampleRate*1000)
	}))
	h := host.New(log, host.Config{
		SampleRate:  cfg.SampleRate,
		BlockSize:   cfg.BlockSize,
		ChordWindow: cfg.ChordWindow(),
	}, e, store, ports.Sink())

	if live.audio {
		synth, err := audio.NewSynth()
		if err != nil {
			return fmt.Errorf("failed to initialize audio: %w", err)
		}
		defer synth.Close()
		synth.SetWave(cfg.Wave())
		synth.SetVolume(cfg.SynthVolume)
		h.AddSink(synth)
	}

	stop, err := ports.Listen(h)
	if err != nil {
		return fmt.Errorf("failed to listen to MIDI port: %w", err)
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.HTTPAddr != "" {
		srv := control.New(log, store, h,
			control.WithRunID(runID),
			control.WithPersist(saveParams, control.SaveDelay),
		)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				log.Error("control: server failed", "err", err)
			}
		}()
	}

	log.Info("live: started", "in", ports.In.String(), "out", ports.Out.String(), "glide_ms", cfg.GlideMs, "strategy", cfg.Strategy)

	if !live.monitor {
		return h.Run(ctx)
	}

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	title := fmt.Sprintf("%s → %s", ports.In, ports.Out)
	p := tea.NewProgram(tui.New(h, store, title), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()
	cancel()
	if err := <-done; err != nil {
		return err
	}
	if uiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("error running monitor: %w", uiErr)
	}
	return nil
}

// saveParams persists parameter changes made while running.
func saveParams(p engine.Params) error {
	c := *cfg
	c.SetParams(p)
	return c.SaveFile(configPath)
}
