package mpe

import (
	"sort"

	"gitlab.com/gomidi/midi/v2"
)

// Event is a MIDI message positioned inside a processing block.
type Event struct {
	Offset  int // sample offset from the block start
	Message midi.Message
}

// SortEvents orders events by offset, keeping insertion order for ties.
func SortEvents(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].Offset < evs[j].Offset
	})
}

// Registered parameter numbers used below.
const (
	rpnBendSensitivity = 0
	rpnMPEConfig       = 6

	ccDataEntryMSB = 6
	ccDataEntryLSB = 38
	ccRPNLSB       = 100
	ccRPNMSB       = 101
)

func rpn(ch uint8, param, msb, lsb uint8) []midi.Message {
	return []midi.Message{
		midi.ControlChange(ch, ccRPNMSB, 0),
		midi.ControlChange(ch, ccRPNLSB, param),
		midi.ControlChange(ch, ccDataEntryMSB, msb),
		midi.ControlChange(ch, ccDataEntryLSB, lsb),
		midi.ControlChange(ch, ccRPNMSB, 127),
		midi.ControlChange(ch, ccRPNLSB, 127),
	}
}

// ConfigurationMessages returns the MPE Configuration Message announcing a
// lower zone with NumMembers member channels, followed by a bend-sensitivity
// RPN on every member channel.
func ConfigurationMessages(bendRange int) []midi.Message {
	semis := uint8(Clamp(bendRange, 0, 96)) //nolint:gosec // clamped
	msgs := rpn(MasterChannel, rpnMPEConfig, NumMembers, 0)
	for ch := FirstMember; ch < FirstMember+NumMembers; ch++ {
		msgs = append(msgs, BendSensitivityMessages(ch, semis)...)
	}
	return msgs
}

// BendSensitivityMessages sets the pitch-bend range of ch to semis semitones.
func BendSensitivityMessages(ch, semis uint8) []midi.Message {
	return rpn(ch, rpnBendSensitivity, semis, 0)
}

// AllNotesOff returns a CC 123 for every member channel.
func AllNotesOff() []midi.Message {
	msgs := make([]midi.Message, 0, NumMembers)
	for ch := FirstMember; ch < FirstMember+NumMembers; ch++ {
		msgs = append(msgs, midi.ControlChange(ch, 123, 0))
	}
	return msgs
}
