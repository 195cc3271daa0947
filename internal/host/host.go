// Package host runs the engine against live MIDI ports in real time.
package host

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/mpe"
)

const (
	maxInbox       = 1024
	snapshotPeriod = 25 * time.Millisecond
)

// Sink receives engine output.
type Sink interface {
	Send(msg midi.Message) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(msg midi.Message) error

// Send calls f.
func (f SinkFunc) Send(msg midi.Message) error { return f(msg) }

type arrival struct {
	at  time.Time
	msg midi.Message
}

// Config describes the block loop.
type Config struct {
	SampleRate float64
	BlockSize  int

	// ChordWindow holds input back after a note-on so notes struck up to
	// this long after it reach the engine in the same block. Zero groups by
	// block only.
	ChordWindow time.Duration
}

// Host feeds the engine from an inbox of timestamped input and sends its
// output to a set of sinks, one block per tick.
type Host struct {
	log    *slog.Logger
	cfg    Config
	engine *engine.Engine
	params *Store
	sinks  []Sink
	now    func() time.Time

	mu      sync.Mutex
	inbox   []arrival
	dropped uint64

	start     time.Time
	window    int64 // ChordWindow in samples
	bendRange float64
	lastSnap  time.Time
	block     []mpe.Event

	snapMu sync.RWMutex
	snap   engine.Snapshot

	reset      atomic.Bool
	sendErrors atomic.Uint64
}

// New returns a host driving e with parameters from params.
func New(log *slog.Logger, cfg Config, e *engine.Engine, params *Store, sinks ...Sink) *Host {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 256
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &Host{
		log:    log,
		cfg:    cfg,
		engine: e,
		params: params,
		sinks:  sinks,
		now:    time.Now,
		window: int64(math.Round(max(cfg.ChordWindow, 0).Seconds() * cfg.SampleRate)),
		inbox:  make([]arrival, 0, 64),
		block:  make([]mpe.Event, 0, 64),
	}
}

// AddSink adds a sink. It must be called before Run.
func (h *Host) AddSink(s Sink) {
	h.sinks = append(h.sinks, s)
}

// Deliver queues msg as arriving now. It is safe to call from any goroutine.
func (h *Host) Deliver(msg midi.Message) {
	h.deliverAt(h.now(), msg)
}

func (h *Host) deliverAt(at time.Time, msg midi.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inbox) >= maxInbox {
		h.dropped++
		return
	}
	h.inbox = append(h.inbox, arrival{at, append(midi.Message(nil), msg...)})
}

// Reset asks the loop to reset the engine before the next block.
func (h *Host) Reset() {
	h.reset.Store(true)
}

// Snapshot returns the engine state as of the last published block.
func (h *Host) Snapshot() engine.Snapshot {
	h.snapMu.RLock()
	defer h.snapMu.RUnlock()
	return h.snap
}

// SendErrors returns how many sends have failed.
func (h *Host) SendErrors() uint64 {
	return h.sendErrors.Load()
}

// Dropped returns how many input messages were discarded by a full inbox.
func (h *Host) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// BlockDuration is the wall time covered by one block.
func (h *Host) BlockDuration() time.Duration {
	return time.Duration(float64(h.cfg.BlockSize) / h.cfg.SampleRate * float64(time.Second))
}

// Run processes blocks until ctx is cancelled, then silences everything the
// engine left sounding.
func (h *Host) Run(ctx context.Context) error {
	h.prepare(h.now())

	ticker := time.NewTicker(h.BlockDuration())
	defer ticker.Stop()

	h.log.Info("host: running",
		"sample_rate", h.cfg.SampleRate,
		"block", h.cfg.BlockSize,
		"latency_samples", h.engine.Latency(),
	)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case <-ticker.C:
			h.step(h.now())
		}
	}
}

func (h *Host) prepare(now time.Time) {
	p := h.params.Get()
	h.engine.SetParams(p)
	h.engine.Prepare(h.cfg.SampleRate, engine.LookaheadSamples(p.GlideMs, h.cfg.SampleRate))
	h.start = now
	h.lastSnap = time.Time{}
	h.configure(p.BendRange)
	h.publish(now)
}

// configure sends the MPE zone setup for bendRange.
func (h *Host) configure(bendRange float64) {
	h.bendRange = bendRange
	for _, msg := range mpe.ConfigurationMessages(int(bendRange)) {
		h.send(msg)
	}
	h.log.Debug("host: mpe configuration sent", "bend_range", bendRange)
}

// step runs every block whose last sample lies before now.
func (h *Host) step(now time.Time) {
	if h.reset.Swap(false) {
		h.sendAll(h.engine.Reset())
		h.log.Info("host: engine reset")
		h.prepare(now)
		return
	}

	due := h.sampleAt(now)
	n := int64(h.cfg.BlockSize)
	for h.engine.Now()+n <= due {
		p := h.params.Get()
		if p.BendRange != h.bendRange && h.engine.Idle() {
			h.configure(p.BendRange)
		}
		// The engine encodes with the range the receiver was told about.
		p.BendRange = h.bendRange
		h.engine.SetParams(p)
		h.sendAll(h.engine.Process(h.drain(h.engine.Now()+n), h.cfg.BlockSize))
	}

	if now.Sub(h.lastSnap) >= snapshotPeriod {
		h.publish(now)
	}
}

// drain moves every input that arrived before sample end into the block.
// Live input is stamped at block granularity: everything lands on offset 0,
// so notes struck together form one cluster. Nothing is drained while the
// chord window of the earliest waiting note-on is still open.
func (h *Host) drain(end int64) []mpe.Event {
	h.block = h.block[:0]

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.holding(end) {
		return h.block
	}

	kept := h.inbox[:0]
	for _, a := range h.inbox {
		if h.sampleAt(a.at) >= end {
			kept = append(kept, a)
			continue
		}
		h.block = append(h.block, mpe.Event{Offset: 0, Message: a.msg})
	}
	clear(h.inbox[len(kept):])
	h.inbox = kept
	return h.block
}

// holding reports whether the first note-on due before end still waits for
// companions. h.mu must be held.
func (h *Host) holding(end int64) bool {
	if h.window <= 0 {
		return false
	}
	var ch, key, vel uint8
	for _, a := range h.inbox {
		at := h.sampleAt(a.at)
		if at >= end || !a.msg.GetNoteStart(&ch, &key, &vel) {
			continue
		}
		return at+h.window > end
	}
	return false
}

func (h *Host) sampleAt(t time.Time) int64 {
	return int64(math.Round(t.Sub(h.start).Seconds() * h.cfg.SampleRate))
}

func (h *Host) sendAll(evs []mpe.Event) {
	for _, ev := range evs {
		h.send(ev.Message)
	}
}

func (h *Host) send(msg midi.Message) {
	for _, s := range h.sinks {
		if err := s.Send(msg); err != nil {
			if h.sendErrors.Add(1) == 1 {
				h.log.Warn("host: send failed", "msg", msg, "err", err)
			}
		}
	}
}

func (h *Host) publish(now time.Time) {
	snap := h.engine.Snapshot()
	h.snapMu.Lock()
	h.snap = snap
	h.snapMu.Unlock()
	h.lastSnap = now
}

func (h *Host) shutdown() {
	h.sendAll(h.engine.Reset())
	for _, msg := range mpe.AllNotesOff() {
		h.send(msg)
	}
	h.publish(h.now())
	h.log.Info("host: stopped", "send_errors", h.SendErrors(), "dropped", h.Dropped())
}
