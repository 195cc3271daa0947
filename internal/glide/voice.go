// Package glide implements a single gliding voice: one member channel whose
// held note bends from a start pitch to a target pitch over a fixed number of
// samples.
package glide

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/chordglide/internal/mpe"
)

// BendInterval is the spacing, in samples, of bend updates during a glide.
const BendInterval = 8

// State of a voice.
type State int

const (
	// Waiting for its start sample.
	Waiting State = iota
	// Gliding between start and target.
	Gliding
	// Settled on its target and holding it.
	Settled
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Gliding:
		return "gliding"
	default:
		return "settled"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Voice is the state machine for one channel. Times are absolute samples.
type Voice struct {
	channel   uint8
	origin    uint8
	target    uint8
	velocity  uint8
	start     int64
	duration  int64
	bendRange float64

	state    State
	cursor   int64 // next sample to process
	held     bool  // a note is sounding on the channel
	sounding uint8 // valid while held
}

// New returns a voice gliding on ch from one pitch to another, starting at
// sample start and lasting duration samples. bendRange is fixed for the
// voice's lifetime so later parameter changes do not disturb it.
func New(ch, from, to, velocity uint8, start, duration int64, bendRange float64) Voice {
	if duration < 0 {
		duration = 0
	}
	return Voice{
		channel:   ch,
		origin:    from,
		target:    to,
		velocity:  velocity,
		start:     start,
		duration:  duration,
		bendRange: bendRange,
		cursor:    start,
	}
}

// Adopt marks the start pitch as already sounding on the channel, left there
// by a previous voice. The voice then skips its opening Note-On.
func (v *Voice) Adopt() {
	if v.state != Waiting {
		return
	}
	v.held = true
	v.sounding = v.origin
}

// Channel returns the member channel.
func (v *Voice) Channel() uint8 { return v.channel }

// Origin returns the pitch the glide starts from.
func (v *Voice) Origin() uint8 { return v.origin }

// Target returns the pitch the glide ends on.
func (v *Voice) Target() uint8 { return v.target }

// Start returns the first sample of the glide.
func (v *Voice) Start() int64 { return v.start }

// Duration returns the glide length in samples.
func (v *Voice) Duration() int64 { return v.duration }

// State returns the state as of the last processed block.
func (v *Voice) State() State { return v.state }

// Bending reports whether the voice is gliding or has a glide still ahead.
func (v *Voice) Bending() bool { return v.state != Settled && v.duration > 0 }

// Sounding returns the note currently held on the channel.
func (v *Voice) Sounding() (uint8, bool) { return v.sounding, v.held }

// Progress returns how far the glide has come at sample now, in [0, 1].
func (v *Voice) Progress(now int64) float64 {
	if v.duration == 0 {
		return 1
	}
	return mpe.Clamp(float64(now-v.start)/float64(v.duration), 0, 1)
}

// BendOffset returns the bend in semitones applied at sample now. Once the
// target is reached the held note is re-based onto it and the offset is 0.
func (v *Voice) BendOffset(now int64) float64 {
	el := now - v.start
	if el < 0 || el >= v.duration {
		return 0
	}
	return v.offsetAt(el)
}

// HasReachedTarget reports whether the glide is over at sample now.
func (v *Voice) HasReachedTarget(now int64) bool {
	return now >= v.start+v.duration
}

func (v *Voice) offsetAt(el int64) float64 {
	return float64(int(v.target)-int(v.origin)) * float64(el) / float64(v.duration)
}

// Process emits the voice's events up to (not including) sample until, with
// offsets relative to origin, the first sample of the current block. Samples
// already processed are skipped, so a block may be processed in several
// steps. A start sample that lies behind origin is served at offset 0.
func (v *Voice) Process(origin, until int64, out []mpe.Event) []mpe.Event {
	if v.state == Settled || v.start >= until {
		return out
	}

	if v.state == Waiting {
		at := max(v.start, origin, v.cursor)
		off := int(at - origin)
		if v.duration == 0 {
			return v.jump(off, out)
		}
		if !v.held {
			out = append(out, mpe.Event{Offset: off, Message: midi.NoteOn(v.channel, v.origin, v.velocity)})
			v.held = true
			v.sounding = v.origin
		}
		out = append(out, mpe.Event{Offset: off, Message: mpe.CenterBend(v.channel)})
		v.state = Gliding
		v.cursor = at
	}

	for t := max(v.cursor, origin); t < until; t++ {
		el := t - v.start
		if el >= v.duration {
			v.cursor = t
			return v.complete(int(t-origin), out)
		}
		if el > 0 && el%BendInterval == 0 {
			out = append(out, mpe.Event{
				Offset:  int(t - origin),
				Message: mpe.BendMessage(v.channel, v.offsetAt(el), v.bendRange),
			})
		}
	}
	v.cursor = max(v.cursor, until)
	return out
}

// jump settles a zero-length voice: no interpolation, bend stays centered.
func (v *Voice) jump(off int, out []mpe.Event) []mpe.Event {
	if v.held && v.sounding != v.target {
		out = append(out, mpe.Event{Offset: off, Message: midi.NoteOff(v.channel, v.sounding)})
		v.held = false
	}
	out = append(out, mpe.Event{Offset: off, Message: mpe.CenterBend(v.channel)})
	if !v.held {
		out = append(out, mpe.Event{Offset: off, Message: midi.NoteOn(v.channel, v.target, v.velocity)})
	}
	v.held = true
	v.sounding = v.target
	v.state = Settled
	return out
}

// complete lands the glide: the final bend, then the held note is swapped for
// the target with the bend re-centered so chained glides never run out of
// bend range. A glide onto its own start pitch keeps the note.
func (v *Voice) complete(off int, out []mpe.Event) []mpe.Event {
	out = append(out, mpe.Event{
		Offset:  off,
		Message: mpe.BendMessage(v.channel, float64(int(v.target)-int(v.origin)), v.bendRange),
	})
	if v.target != v.origin {
		out = append(out,
			mpe.Event{Offset: off, Message: midi.NoteOff(v.channel, v.origin)},
			mpe.Event{Offset: off, Message: mpe.CenterBend(v.channel)},
			mpe.Event{Offset: off, Message: midi.NoteOn(v.channel, v.target, v.velocity)},
		)
	} else {
		out = append(out, mpe.Event{Offset: off, Message: mpe.CenterBend(v.channel)})
	}
	v.sounding = v.target
	v.state = Settled
	return out
}

// Stop ends the voice at offset off, silencing whatever it holds.
func (v *Voice) Stop(off int, out []mpe.Event) []mpe.Event {
	if v.held {
		out = append(out, mpe.Event{Offset: off, Message: midi.NoteOff(v.channel, v.sounding)})
	}
	v.held = false
	v.state = Settled
	return out
}
