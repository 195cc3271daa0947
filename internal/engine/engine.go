// Package engine turns chords arriving on a MIDI stream into per-voice pitch
// glides on MPE member channels.
//
// The engine is driven one block at a time by a single caller. Output lags
// input by the lookahead: a call covering input samples [clock, clock+n)
// emits output for [clock-L, clock-L+n), which gives every chord L samples of
// warning before its glide must land on it. Both streams share one absolute
// timeline, so a chord struck at sample T sounds at sample T, reported L
// samples late.
package engine

import (
	"log/slog"
	"math/rand"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/chordglide/internal/chord"
	"github.com/icco/chordglide/internal/glide"
	"github.com/icco/chordglide/internal/mpe"
	"github.com/icco/chordglide/internal/voicemap"
)

// DefaultMaxBuffered bounds the event buffer.
const DefaultMaxBuffered = 4096

// Stats counts what happened since the last prepare or reset.
type Stats struct {
	Blocks         uint64 `json:"blocks"`
	Chords         uint64 `json:"chords"`
	Transitions    uint64 `json:"transitions"`
	ReplacedChords uint64 `json:"replacedChords"`
	DroppedVoices  uint64 `json:"droppedVoices"`
	DroppedEvents  uint64 `json:"droppedEvents"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The engine only logs at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRand sets the random source used by the random mapping strategy.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSeed seeds the random mapping strategy.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// WithSingleNotes sets the policy for note-ons that do not form a chord.
func WithSingleNotes(p SinglePolicy) Option {
	return func(e *Engine) { e.singles = p }
}

// WithPassthrough controls whether messages other than notes and pitch bends
// are forwarded. They are by default.
func WithPassthrough(on bool) Option {
	return func(e *Engine) { e.passOther = on }
}

// WithMaxBuffered bounds the event buffer.
func WithMaxBuffered(n int) Option {
	return func(e *Engine) { e.maxBuffered = n }
}

// WithLatencyFunc registers fn to be told the output latency in samples
// whenever it changes.
func WithLatencyFunc(fn func(samples int)) Option {
	return func(e *Engine) { e.onLatency = fn }
}

// Engine is the chord transition scheduler. It is not safe for concurrent
// use.
type Engine struct {
	log         *slog.Logger
	rng         *rand.Rand
	singles     SinglePolicy
	passOther   bool
	maxBuffered int
	onLatency   func(int)

	params     Params // requested
	applied    Params // in effect
	strategy   voicemap.Strategy
	sampleRate float64
	lookahead  int

	clock    Clock
	buffer   *Buffer
	detector chord.Detector
	alloc    mpe.Allocator
	voices   []glide.Voice
	lone     [128]int8 // channel+1 of a passed-through single note, 0 if none

	mark  int64 // voices have been processed up to here in this block
	out   []mpe.Event
	stats Stats
}

// New returns an engine prepared for 48 kHz with default parameters.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:         slog.Default(),
		passOther:   true,
		maxBuffered: DefaultMaxBuffered,
		params:      DefaultParams(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e.buffer = NewBuffer(e.maxBuffered)
	e.voices = make([]glide.Voice, 0, mpe.NumMembers)
	e.out = make([]mpe.Event, 0, 256)

	const sr = 48000
	e.Prepare(sr, LookaheadSamples(e.params.GlideMs, sr))
	return e
}

// SetParams requests new parameters, applied from the next block.
func (e *Engine) SetParams(p Params) {
	e.params = p
}

// Params returns the requested parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Latency returns the current lookahead in samples.
func (e *Engine) Latency() int {
	return e.lookahead
}

// SampleRate returns the rate given to Prepare.
func (e *Engine) SampleRate() float64 {
	return e.sampleRate
}

// Now returns the input time of the next block's first sample.
func (e *Engine) Now() int64 {
	return e.clock.Now()
}

// OutputTime returns the output time of the next block's first sample.
func (e *Engine) OutputTime() int64 {
	return e.clock.Now() - int64(e.lookahead)
}

// Idle reports whether no voice is gliding or about to glide. The receiver's
// bend range can only change safely while the engine is idle.
func (e *Engine) Idle() bool {
	for i := range e.voices {
		if e.voices[i].Bending() {
			return false
		}
	}
	return true
}

// Stats returns the counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Prepare readies the engine for playback at sampleRate with the given
// lookahead, discarding all state.
func (e *Engine) Prepare(sampleRate float64, lookahead int) {
	e.clear()
	e.sampleRate = sampleRate
	e.lookahead = max(lookahead, 0)
	e.applied = e.params
	e.strategy = voicemap.New(e.applied.Strategy, e.rng)
	e.stats = Stats{}
	if e.onLatency != nil {
		e.onLatency(e.lookahead)
	}
}

// Reset discards buffered input, chords and voices and rewinds the clock. It
// returns the Note-Offs needed to silence everything the engine left sounding.
func (e *Engine) Reset() []mpe.Event {
	var offs []mpe.Event
	for i := range e.voices {
		offs = e.voices[i].Stop(0, offs)
	}
	for pitch, ch := range e.lone {
		if ch > 0 {
			offs = append(offs, mpe.Event{Message: midi.NoteOff(uint8(ch-1), uint8(pitch))}) //nolint:gosec // bounded
		}
	}
	e.clear()
	e.stats = Stats{}
	return offs
}

func (e *Engine) clear() {
	if e.buffer != nil {
		e.buffer.Reset()
	}
	e.clock.Reset()
	e.detector.Clear()
	e.alloc.Reset()
	e.voices = e.voices[:0]
	e.lone = [128]int8{}
}

// apply brings the requested parameters into effect.
func (e *Engine) apply() {
	p := e.params
	if p.GlideMs != e.applied.GlideMs {
		if la := LookaheadSamples(p.GlideMs, e.sampleRate); la != e.lookahead {
			e.lookahead = la
			e.log.Debug("engine: latency changed", "samples", la, "glide_ms", p.GlideMs)
			if e.onLatency != nil {
				e.onLatency(la)
			}
		}
	}
	if p.Strategy != e.applied.Strategy {
		e.strategy = voicemap.New(p.Strategy, e.rng)
	}
	e.applied = p
}

// Process consumes one block of n samples of input and returns the output
// for the block. Input offsets are clamped to [0, n). The returned slice is
// reused by the next call.
func (e *Engine) Process(in []mpe.Event, n int) []mpe.Event {
	e.out = e.out[:0]
	if n <= 0 {
		return e.out
	}
	e.apply()

	la := int64(e.lookahead)
	now := e.clock.Now()
	from := now - la
	to := from + int64(n)

	for _, ev := range in {
		off := mpe.Clamp(ev.Offset, 0, n-1)
		if !e.buffer.Push(now+int64(off), ev.Message) {
			e.stats.DroppedEvents++
		}
	}

	e.buffer.Clusters(from, to+la, e.detect)

	e.mark = from
	for _, ev := range e.buffer.Before(to) {
		e.transition(from, ev.Time)
		e.handle(ev, from)
	}
	e.transition(from, to)

	for i := range e.voices {
		e.out = e.voices[i].Process(from, to, e.out)
	}
	mpe.SortEvents(e.out)

	e.clock.Advance(n)
	e.buffer.Prune(to)
	e.stats.Blocks++
	return e.out
}

// detect is called for every new cluster of simultaneous note-ons.
func (e *Engine) detect(t int64, notes []chord.Note) bool {
	c := chord.New(t, notes)
	outcome := e.detector.Offer(c)
	switch outcome {
	case chord.Ignored:
		return false
	case chord.BecameCurrent:
		for _, n := range c.Notes() {
			e.spawn(n.Pitch, n.Pitch, n.Velocity, t, 0)
		}
	case chord.ReplacedPending:
		e.stats.ReplacedChords++
	}
	e.stats.Chords++
	e.log.Debug("engine: chord detected", "chord", c, "outcome", outcome)
	return true
}

// spawn allocates a channel and adds a voice. Without a free channel the
// voice is dropped.
func (e *Engine) spawn(from, to, velocity uint8, start, duration int64) *glide.Voice {
	ch, err := e.alloc.Allocate()
	if err != nil {
		e.stats.DroppedVoices++
		e.log.Debug("engine: voice dropped", "from", from, "to", to, "err", err)
		return nil
	}
	e.voices = append(e.voices, glide.New(ch, from, to, velocity, start, duration, e.applied.BendRange))
	return &e.voices[len(e.voices)-1]
}

// handle processes one buffered event that the output has reached.
func (e *Engine) handle(ev BufferedEvent, from int64) {
	off := int(max(ev.Time, from) - from)

	switch ev.kind {
	case kindNoteOff:
		e.noteOff(ev, from, off)
	case kindNoteOn:
		if ev.lone && e.singles == SinglesPassthrough {
			e.out = append(e.out, mpe.Event{Offset: off, Message: ev.Message})
			e.lone[ev.pitch] = int8(ev.channel) + 1 //nolint:gosec // channel < 16
		}
	case kindBend:
		// member channel bends belong to the engine
	default:
		if e.passOther {
			e.out = append(e.out, mpe.Event{Offset: off, Message: ev.Message})
		}
	}
}

func (e *Engine) noteOff(ev BufferedEvent, from int64, off int) {
	removed, emptied := e.detector.Release(ev.pitch, ev.Time)
	if !removed {
		if e.lone[ev.pitch] != 0 {
			e.out = append(e.out, mpe.Event{Offset: off, Message: ev.Message})
			e.lone[ev.pitch] = 0
		}
		return
	}

	until := max(ev.Time, from)
	e.mark = max(e.mark, until)
	kept := e.voices[:0]
	for i := range e.voices {
		v := &e.voices[i]
		if emptied || v.Target() == ev.pitch {
			e.out = v.Process(from, until, e.out)
			e.out = v.Stop(off, e.out)
			e.alloc.Release(v.Channel())
			continue
		}
		kept = append(kept, *v)
	}
	e.voices = kept

	if !emptied {
		return
	}
	e.alloc.Reset()
	e.log.Debug("engine: chord released", "at", ev.Time)
	if c, ok := e.detector.Current(); ok {
		for _, n := range c.Notes() {
			e.spawn(n.Pitch, n.Pitch, n.Velocity, c.Time(), 0)
		}
		e.log.Debug("engine: queued chord restarted", "chord", c)
	}
}

// transition starts the pending chord's glide if it is due before limit. The
// glide starts lookahead samples ahead of the pending chord, or as soon as
// the previous glide has landed if that is later, and always lands on the
// chord's own timestamp. Note-offs still ahead of the output do not hold it
// back.
func (e *Engine) transition(from, limit int64) {
	cur, ok := e.detector.Current()
	if !ok {
		return
	}
	next, ok := e.detector.Pending()
	if !ok {
		return
	}

	deadline := next.Time()
	at := max(deadline-int64(e.lookahead), from, e.mark)
	for i := range e.voices {
		v := &e.voices[i]
		at = max(at, v.Start()+v.Duration())
	}
	if at >= limit {
		return
	}

	// Every voice has landed by at; glides ending on at still emit their
	// landing.
	for i := range e.voices {
		e.out = e.voices[i].Process(from, at+1, e.out)
	}
	e.mark = at

	mapping := e.strategy.Map(cur.Pitches(), next.Pitches())

	// Wholesale teardown: remember what each channel holds so a new voice
	// starting on the same note can take it over.
	var held [16]int
	for i := range held {
		held[i] = -1
	}
	for i := range e.voices {
		v := &e.voices[i]
		if note, ok := v.Sounding(); ok {
			held[v.Channel()] = int(note)
		}
		e.alloc.Release(v.Channel())
	}
	e.voices = e.voices[:0]

	duration := max(deadline-at, 0)
	for _, a := range mapping {
		for _, tgt := range a.Targets {
			vel := uint8(100)
			if n, ok := next.Find(uint8(tgt)); ok { //nolint:gosec // pitches are 7-bit
				vel = n.Velocity
			}
			v := e.spawn(uint8(a.Source), uint8(tgt), vel, at, duration) //nolint:gosec // pitches are 7-bit
			if v == nil {
				continue
			}
			if held[v.Channel()] == a.Source {
				v.Adopt()
				held[v.Channel()] = -1
			}
		}
	}

	off := int(at - from)
	for ch, note := range held {
		if note >= 0 {
			e.out = append(e.out, mpe.Event{Offset: off, Message: midi.NoteOff(uint8(ch), uint8(note))}) //nolint:gosec // bounded
		}
	}

	e.detector.Promote()
	e.stats.Transitions++
	e.log.Debug("engine: transition",
		"from", cur,
		"to", next,
		"start", at,
		"samples", duration,
		"voices", len(e.voices),
	)
}
