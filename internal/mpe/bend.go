package mpe

import (
	"math"

	"gitlab.com/gomidi/midi/v2"
	"golang.org/x/exp/constraints"
)

// 14-bit pitch-bend wire values.
const (
	BendCenter uint16 = 8192
	BendMax    uint16 = 16383
)

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodeBend converts a bend offset in semitones to the 14-bit wire value for
// a receiver configured with bendRange semitones of sensitivity. Offsets past
// the range saturate. A non-positive range always yields the center.
func EncodeBend(semitones, bendRange float64) uint16 {
	if !(bendRange > 0) || math.IsNaN(semitones) {
		return BendCenter
	}
	norm := Clamp(semitones/bendRange, -1, 1)
	v := math.Round(norm*float64(BendCenter) + float64(BendCenter))
	return uint16(Clamp(v, 0, float64(BendMax)))
}

// DecodeBend is the inverse of EncodeBend, up to quantization.
func DecodeBend(value uint16, bendRange float64) float64 {
	return (float64(value) - float64(BendCenter)) / float64(BendCenter) * bendRange
}

// BendMessage builds a pitch-bend message on ch for the given offset.
func BendMessage(ch uint8, semitones, bendRange float64) midi.Message {
	rel := int(EncodeBend(semitones, bendRange)) - int(BendCenter)
	return midi.Pitchbend(ch, int16(rel)) //nolint:gosec // rel in [-8192, 8191]
}

// CenterBend builds a pitch-bend reset message on ch.
func CenterBend(ch uint8) midi.Message {
	return midi.Pitchbend(ch, 0)
}
