package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/icco/chordglide/internal/voicemap"
)

// Params are the user-facing settings. They are read at the start of every
// block; a change only affects transitions triggered afterwards.
type Params struct {
	GlideMs   float64       `json:"glideMs"`
	BendRange float64       `json:"bendRange"`
	Strategy  voicemap.Kind `json:"strategy"`
}

// Parameter bounds.
const (
	MinGlideMs   = 10
	MaxGlideMs   = 2000
	MinBendRange = 1
	MaxBendRange = 96
)

// DefaultParams returns a 200 ms nearest-note glide for a 12 semitone bend
// range.
func DefaultParams() Params {
	return Params{
		GlideMs:   200,
		BendRange: 12,
		Strategy:  voicemap.KindNearest,
	}
}

// Validate checks p against the parameter bounds.
func (p Params) Validate() error {
	if math.IsNaN(p.GlideMs) || p.GlideMs < MinGlideMs || p.GlideMs > MaxGlideMs {
		return fmt.Errorf("glide time %v ms outside [%d, %d]", p.GlideMs, MinGlideMs, MaxGlideMs)
	}
	if math.IsNaN(p.BendRange) || p.BendRange < MinBendRange || p.BendRange > MaxBendRange {
		return fmt.Errorf("bend range %v outside [%d, %d]", p.BendRange, MinBendRange, MaxBendRange)
	}
	if p.Strategy != voicemap.KindNearest && p.Strategy != voicemap.KindRandom {
		return fmt.Errorf("strategy %v: %w", p.Strategy, voicemap.ErrUnknownStrategy)
	}
	return nil
}

// LookaheadSamples converts a glide time to samples.
func LookaheadSamples(glideMs, sampleRate float64) int {
	if glideMs <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(glideMs * sampleRate / 1000))
}

// SinglePolicy decides what happens to note-ons that do not form a chord.
type SinglePolicy int

const (
	// SinglesPassthrough emits them, and their note-offs, untouched.
	SinglesPassthrough SinglePolicy = iota
	// SinglesDrop discards them.
	SinglesDrop
)

func (s SinglePolicy) String() string {
	if s == SinglesDrop {
		return "drop"
	}
	return "passthrough"
}

// ParseSinglePolicy accepts the names produced by SinglePolicy.String.
func ParseSinglePolicy(s string) (SinglePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "passthrough", "pass":
		return SinglesPassthrough, nil
	case "drop":
		return SinglesDrop, nil
	}
	return 0, fmt.Errorf("unknown single-note policy %q", s)
}
