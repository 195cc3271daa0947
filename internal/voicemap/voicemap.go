// Package voicemap decides which notes of one chord glide to which notes of
// the next.
package voicemap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStrategy is returned when a strategy name cannot be parsed.
var ErrUnknownStrategy = errors.New("voicemap: unknown strategy")

// Assignment lists the targets a single source pitch glides to. A source with
// several targets is split into several voices; a source with none is dropped.
type Assignment struct {
	Source  int
	Targets []int
}

// Strategy maps a source pitch set onto a target pitch set. The result holds
// one Assignment per source, in source order. Either set being empty yields
// an empty mapping.
type Strategy interface {
	Map(sources, targets []int) []Assignment
}

// Kind selects one of the built-in strategies.
type Kind int

const (
	KindNearest Kind = iota
	KindRandom
)

func (k Kind) String() string {
	switch k {
	case KindNearest:
		return "nearest"
	case KindRandom:
		return "random"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest", "nearest-note", "nearestnote":
		return KindNearest, nil
	case "random":
		return KindRandom, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func newAssignments(sources []int) []Assignment {
	out := make([]Assignment, len(sources))
	for i, s := range sources {
		out[i].Source = s
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
