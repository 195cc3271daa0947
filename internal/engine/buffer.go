package engine

import (
	"sort"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/chordglide/internal/chord"
)

type eventKind uint8

const (
	kindOther eventKind = iota
	kindNoteOn
	kindNoteOff
	kindBend
)

// BufferedEvent is an input message tagged with its absolute sample time.
type BufferedEvent struct {
	Time    int64
	Message midi.Message

	kind     eventKind
	channel  uint8
	pitch    uint8
	velocity uint8
	claimed  bool // seen by chord detection
	lone     bool // a note-on that did not form a chord
}

// Buffer keeps input events ordered by time until the output passes them.
type Buffer struct {
	events  []BufferedEvent
	max     int
	scratch []chord.Note
}

// NewBuffer returns a buffer holding at most max events.
func NewBuffer(max int) *Buffer {
	return &Buffer{
		events:  make([]BufferedEvent, 0, max),
		max:     max,
		scratch: make([]chord.Note, 0, 16),
	}
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Push stores msg at time t. Events arriving out of order are inserted after
// every event with the same or an earlier time. Push reports false when the
// buffer is full and the event was dropped.
func (b *Buffer) Push(t int64, msg midi.Message) bool {
	if len(b.events) >= b.max {
		return false
	}

	ev := BufferedEvent{Time: t, Message: append(midi.Message(nil), msg...)}
	switch {
	case msg.GetNoteStart(&ev.channel, &ev.pitch, &ev.velocity):
		ev.kind = kindNoteOn
	case msg.GetNoteEnd(&ev.channel, &ev.pitch):
		ev.kind = kindNoteOff
	case msg.Is(midi.PitchBendMsg):
		ev.kind = kindBend
	}

	n := len(b.events)
	if n == 0 || b.events[n-1].Time <= t {
		b.events = append(b.events, ev)
		return true
	}
	i := sort.Search(n, func(i int) bool { return b.events[i].Time > t })
	b.events = append(b.events, BufferedEvent{})
	copy(b.events[i+1:], b.events[i:n])
	b.events[i] = ev
	return true
}

// Clusters calls fn once for every group of unclaimed note-ons sharing a
// timestamp in [from, to). The notes slice is only valid during the call.
// Every event of the group is claimed; when fn returns false the group's
// events are marked lone.
func (b *Buffer) Clusters(from, to int64, fn func(t int64, notes []chord.Note) bool) {
	for i := 0; i < len(b.events); {
		t := b.events[i].Time
		j := i
		for j < len(b.events) && b.events[j].Time == t {
			j++
		}
		if t >= to {
			return
		}
		if t >= from {
			b.cluster(b.events[i:j], fn)
		}
		i = j
	}
}

func (b *Buffer) cluster(group []BufferedEvent, fn func(t int64, notes []chord.Note) bool) {
	b.scratch = b.scratch[:0]
	for _, ev := range group {
		if ev.kind == kindNoteOn && !ev.claimed {
			b.scratch = append(b.scratch, chord.Note{Pitch: ev.pitch, Velocity: ev.velocity, Time: ev.Time})
		}
	}
	if len(b.scratch) == 0 {
		return
	}
	isChord := fn(group[0].Time, b.scratch)
	for k := range group {
		if group[k].kind == kindNoteOn && !group[k].claimed {
			group[k].claimed = true
			group[k].lone = !isChord
		}
	}
}

// Before returns the leading events with a time before t.
func (b *Buffer) Before(t int64) []BufferedEvent {
	i := sort.Search(len(b.events), func(i int) bool { return b.events[i].Time >= t })
	return b.events[:i]
}

// Prune drops every event with a time before t and returns how many went.
func (b *Buffer) Prune(t int64) int {
	n := len(b.Before(t))
	if n == 0 {
		return 0
	}
	rest := copy(b.events, b.events[n:])
	clear(b.events[rest:])
	b.events = b.events[:rest]
	return n
}

// Reset drops everything.
func (b *Buffer) Reset() {
	clear(b.events)
	b.events = b.events[:0]
}

// Clock counts input samples since the last prepare or reset.
type Clock struct {
	now int64
}

// Now returns the absolute time of the next block's first sample.
func (c *Clock) Now() int64 { return c.now }

// Advance moves the clock by n samples.
func (c *Clock) Advance(n int) { c.now += int64(n) }

// Reset rewinds the clock to zero.
func (c *Clock) Reset() { c.now = 0 }
