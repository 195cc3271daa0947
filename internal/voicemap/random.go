package voicemap

import (
	"math/rand"
	"time"
)

// Random deals one target to each source without replacement, then scatters
// the leftover targets over random sources. Every target lands in exactly one
// Assignment.
type Random struct {
	rng *rand.Rand
}

// NewRandom returns a Random strategy drawing from rng. A nil rng is seeded
// from the clock.
func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Random{rng: rng}
}

// Map implements Strategy.
func (r *Random) Map(sources, targets []int) []Assignment {
	if len(sources) == 0 || len(targets) == 0 {
		return nil
	}

	out := newAssignments(sources)
	remaining := append([]int(nil), targets...)

	for i := range out {
		if len(remaining) == 0 {
			break
		}
		j := r.rng.Intn(len(remaining))
		out[i].Targets = append(out[i].Targets, remaining[j])
		remaining = append(remaining[:j], remaining[j+1:]...)
	}

	for _, tgt := range remaining {
		i := r.rng.Intn(len(out))
		out[i].Targets = append(out[i].Targets, tgt)
	}

	return out
}

// New returns the strategy for k. rng only matters for KindRandom.
func New(k Kind, rng *rand.Rand) Strategy {
	if k == KindRandom {
		return NewRandom(rng)
	}
	return NearestNote{}
}
