// Package render runs the engine offline over a Standard MIDI File.
package render

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/mpe"
)

const (
	ticksPerQuarterNote = 960
	bpm                 = 120
)

// Event is a message at an absolute sample position.
type Event struct {
	Time    int64
	Message midi.Message
}

// Options control an offline render.
type Options struct {
	SampleRate float64
	BlockSize  int
}

// Read returns the playable messages of every track of the SMF in r, merged
// by time. Times are converted to samples at sampleRate.
func Read(r io.Reader, sampleRate float64) ([]Event, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}

	var evs []Event
	for _, track := range s.Tracks {
		var absTicks int64
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			if !ev.Message.IsPlayable() {
				continue
			}
			us := s.TimeAt(absTicks)
			evs = append(evs, Event{
				Time:    int64(math.Round(float64(us) * sampleRate / 1e6)),
				Message: midi.Message(ev.Message),
			})
		}
	}

	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })
	return evs, nil
}

// Run feeds in to e block by block and returns its output with the engine's
// counters. e is prepared for opts.SampleRate first. Processing continues one
// lookahead past the last input so every glide lands, then whatever is still
// sounding is released.
func Run(e *engine.Engine, in []Event, opts Options) ([]Event, engine.Stats) {
	n := opts.BlockSize
	if n <= 0 {
		n = 256
	}
	e.Prepare(opts.SampleRate, engine.LookaheadSamples(e.Params().GlideMs, opts.SampleRate))

	var end int64
	if len(in) > 0 {
		end = in[len(in)-1].Time + 1
	}

	var (
		out   []Event
		block []mpe.Event
		next  int
	)
	for e.OutputTime() < end {
		now := e.Now()
		block = block[:0]
		for next < len(in) && in[next].Time < now+int64(n) {
			block = append(block, mpe.Event{Offset: int(max(in[next].Time-now, 0)), Message: in[next].Message})
			next++
		}

		from := e.OutputTime()
		for _, ev := range e.Process(block, n) {
			out = append(out, Event{Time: from + int64(ev.Offset), Message: ev.Message})
		}
	}

	stats := e.Stats()
	tail := e.OutputTime()
	for _, ev := range e.Reset() {
		out = append(out, Event{Time: tail, Message: ev.Message})
	}
	return out, stats
}

// Write encodes evs as a format 0 SMF, preceded by the MPE configuration for
// bendRange.
func Write(w io.Writer, evs []Event, sampleRate float64, bendRange int) error {
	sm := smf.NewSMF0()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarterNote)

	var track smf.Track
	track.Add(0, smf.MetaTempo(bpm))
	for _, msg := range mpe.ConfigurationMessages(bendRange) {
		track.Add(0, msg)
	}

	var last uint32
	for _, ev := range evs {
		tick := ticksAt(ev.Time, sampleRate)
		track.Add(tick-min(last, tick), ev.Message)
		last = max(last, tick)
	}
	track.Close(0)

	if err := sm.Add(track); err != nil {
		return fmt.Errorf("error adding track: %w", err)
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("error writing MIDI file: %w", err)
	}
	return nil
}

// ticksAt converts a sample position to ticks at the fixed output tempo.
func ticksAt(sample int64, sampleRate float64) uint32 {
	if sample <= 0 {
		return 0
	}
	beats := float64(sample) / sampleRate * bpm / 60
	return uint32(math.Round(beats * ticksPerQuarterNote)) //nolint:gosec // files are far shorter than 2^32 ticks
}

// File renders the SMF at inPath through e into outPath.
func File(log *slog.Logger, e *engine.Engine, opts Options, inPath, outPath string) (engine.Stats, error) {
	f, err := os.Open(inPath)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	in, err := Read(f, opts.SampleRate)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("%s: %w", inPath, err)
	}
	log.Debug("render: input read", "path", inPath, "events", len(in))

	out, stats := Run(e, in, opts)

	w, err := os.Create(outPath)
	if err != nil {
		return stats, fmt.Errorf("create output: %w", err)
	}
	if err := Write(w, out, opts.SampleRate, int(e.Params().BendRange)); err != nil {
		w.Close()
		return stats, err
	}
	if err := w.Close(); err != nil {
		return stats, fmt.Errorf("close output: %w", err)
	}

	log.Info("render: done",
		"in", inPath,
		"out", outPath,
		"events", len(out),
		"chords", stats.Chords,
		"transitions", stats.Transitions,
	)
	return stats, nil
}
