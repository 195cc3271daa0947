// Package chord groups simultaneous note-ons into chords and tracks the
// current and pending chord.
package chord

import (
	"fmt"
	"sort"
	"strings"
)

// Note is a note-on at an absolute sample time.
type Note struct {
	Pitch    uint8
	Velocity uint8
	Time     int64
}

// Chord is a set of distinct pitches sorted ascending.
type Chord struct {
	notes []Note
	time  int64
}

// New builds a chord at time t. Notes are sorted by pitch and repeated
// pitches keep their first occurrence.
func New(t int64, notes []Note) Chord {
	ns := append([]Note(nil), notes...)
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].Pitch < ns[j].Pitch })

	out := ns[:0]
	for _, n := range ns {
		if len(out) > 0 && out[len(out)-1].Pitch == n.Pitch {
			continue
		}
		out = append(out, n)
	}
	return Chord{notes: out, time: t}
}

// Time returns the chord's timestamp.
func (c Chord) Time() int64 { return c.time }

// Len returns the number of distinct pitches.
func (c Chord) Len() int { return len(c.notes) }

// Empty reports whether the chord holds no notes.
func (c Chord) Empty() bool { return len(c.notes) == 0 }

// Notes returns the notes in ascending pitch order. The slice must not be
// modified.
func (c Chord) Notes() []Note { return c.notes }

// Pitches returns the pitches in ascending order.
func (c Chord) Pitches() []int {
	out := make([]int, len(c.notes))
	for i, n := range c.notes {
		out[i] = int(n.Pitch)
	}
	return out
}

// Find returns the note with the given pitch.
func (c Chord) Find(pitch uint8) (Note, bool) {
	i := sort.Search(len(c.notes), func(i int) bool { return c.notes[i].Pitch >= pitch })
	if i < len(c.notes) && c.notes[i].Pitch == pitch {
		return c.notes[i], true
	}
	return Note{}, false
}

// Without returns a copy of c with pitch removed.
func (c Chord) Without(pitch uint8) Chord {
	out := Chord{time: c.time, notes: make([]Note, 0, len(c.notes))}
	for _, n := range c.notes {
		if n.Pitch != pitch {
			out.notes = append(out.notes, n)
		}
	}
	return out
}

func (c Chord) String() string {
	names := make([]string, len(c.notes))
	for i, n := range c.notes {
		names[i] = NoteName(n.Pitch)
	}
	return fmt.Sprintf("[%s]@%d", strings.Join(names, " "), c.time)
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name of a MIDI note, C4 being 60.
func NoteName(note uint8) string {
	octave := int(note/12) - 1
	return fmt.Sprintf("%s%d", noteNames[note%12], octave)
}
