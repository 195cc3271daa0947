package mpe

import (
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

func TestEncodeBend(t *testing.T) {
	tests := []struct {
		name      string
		semitones float64
		bendRange float64
		want      uint16
	}{
		{"center", 0, 12, 8192},
		{"full up saturates", 12, 12, 16383},
		{"past range up", 30, 12, 16383},
		{"full down", -12, 12, 0},
		{"past range down", -40, 2, 0},
		{"half up", 6, 12, 12288},
		{"half down", -1, 2, 4096},
		{"rounds", 1, 48, 8363}, // 8192 + 170.67
		{"zero range", 5, 0, 8192},
		{"negative range", 5, -3, 8192},
		{"nan", math.NaN(), 12, 8192},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeBend(tt.semitones, tt.bendRange); got != tt.want {
				t.Errorf("EncodeBend(%v, %v) = %d, want %d", tt.semitones, tt.bendRange, got, tt.want)
			}
		})
	}
}

func TestEncodeBendBounds(t *testing.T) {
	for r := 1; r <= 96; r++ {
		if got := EncodeBend(0, float64(r)); got != BendCenter {
			t.Fatalf("range %d: zero offset encoded as %d", r, got)
		}
		for s := -200.0; s <= 200; s += 0.37 {
			if got := EncodeBend(s, float64(r)); got > BendMax {
				t.Fatalf("range %d offset %v: %d out of bounds", r, s, got)
			}
		}
	}
}

func TestBendMessageRoundTrip(t *testing.T) {
	msg := BendMessage(3, 2, 12)

	var ch uint8
	var rel int16
	var abs uint16
	if !msg.GetPitchBend(&ch, &rel, &abs) {
		t.Fatalf("expected pitch bend, got %v", msg)
	}
	if ch != 3 {
		t.Errorf("channel = %d, want 3", ch)
	}
	if abs != EncodeBend(2, 12) {
		t.Errorf("absolute = %d, want %d", abs, EncodeBend(2, 12))
	}
	if d := DecodeBend(abs, 12); math.Abs(d-2) > 0.01 {
		t.Errorf("decoded %v semitones, want 2", d)
	}
}

func TestConfigurationMessages(t *testing.T) {
	msgs := ConfigurationMessages(48)
	if want := 6 * (1 + NumMembers); len(msgs) != want {
		t.Fatalf("got %d messages, want %d", len(msgs), want)
	}

	var ch, cc, val uint8
	// data entry of the MCM carries the member count
	if !msgs[2].GetControlChange(&ch, &cc, &val) || ch != MasterChannel || val != NumMembers {
		t.Errorf("unexpected MCM data entry %v", msgs[2])
	}
	// first member channel gets the bend range
	if !msgs[8].GetControlChange(&ch, &cc, &val) || ch != FirstMember || cc != 6 || val != 48 {
		t.Errorf("unexpected sensitivity data entry %v", msgs[8])
	}
}

func TestSortEventsStable(t *testing.T) {
	evs := []Event{
		{Offset: 5, Message: midi.NoteOn(1, 60, 100)},
		{Offset: 0, Message: midi.NoteOff(1, 62)},
		{Offset: 5, Message: midi.NoteOff(1, 60)},
		{Offset: 0, Message: midi.NoteOn(1, 64, 100)},
	}
	SortEvents(evs)

	var ch, key, vel uint8
	if !evs[0].Message.GetNoteEnd(&ch, &key) || key != 62 {
		t.Errorf("evs[0] = %v", evs[0].Message)
	}
	if !evs[1].Message.GetNoteStart(&ch, &key, &vel) || key != 64 {
		t.Errorf("evs[1] = %v", evs[1].Message)
	}
	if !evs[2].Message.GetNoteStart(&ch, &key, &vel) || key != 60 {
		t.Errorf("evs[2] = %v", evs[2].Message)
	}
}
