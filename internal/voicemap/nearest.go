package voicemap

// NearestNote sends every source to its closest target, then hands each
// target nobody picked to its closest source. Ties go to the earliest
// candidate.
//
// Several sources can pick the same target in the first pass, so a target may
// appear in more than one Assignment. Every target appears at least once.
type NearestNote struct{}

// Map implements Strategy.
func (NearestNote) Map(sources, targets []int) []Assignment {
	if len(sources) == 0 || len(targets) == 0 {
		return nil
	}

	out := newAssignments(sources)
	used := make([]bool, len(targets))

	for i, s := range sources {
		j := nearest(s, targets)
		out[i].Targets = append(out[i].Targets, targets[j])
		used[j] = true
	}

	for j, tgt := range targets {
		if used[j] {
			continue
		}
		i := nearest(tgt, sources)
		out[i].Targets = append(out[i].Targets, tgt)
	}

	return out
}

// nearest returns the index of the candidate closest to p.
func nearest(p int, candidates []int) int {
	best := 0
	bestDist := abs(p - candidates[0])
	for i := 1; i < len(candidates); i++ {
		if d := abs(p - candidates[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
