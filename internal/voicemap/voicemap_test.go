package voicemap

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestNote(t *testing.T) {
	tests := []struct {
		name    string
		sources []int
		targets []int
		want    []Assignment
	}{
		{
			name:    "same size stepwise",
			sources: []int{60, 64, 67},
			targets: []int{62, 65, 69},
			want:    []Assignment{{60, []int{62}}, {64, []int{65}}, {67, []int{69}}},
		},
		{
			name:    "contraction to one note duplicates target",
			sources: []int{60, 64, 67},
			targets: []int{62},
			want:    []Assignment{{60, []int{62}}, {64, []int{62}}, {67, []int{62}}},
		},
		{
			name:    "expansion gives leftover to nearest source",
			sources: []int{60, 67},
			targets: []int{60, 64, 67},
			want:    []Assignment{{60, []int{60}}, {67, []int{67, 64}}},
		},
		{
			name:    "tie resolves to first target",
			sources: []int{62},
			targets: []int{60, 64},
			want:    []Assignment{{62, []int{60, 64}}},
		},
		{
			name:    "shared pick plus leftover",
			sources: []int{60, 61},
			targets: []int{60, 72},
			want:    []Assignment{{60, []int{60}}, {61, []int{60, 72}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NearestNote{}.Map(tt.sources, tt.targets))
		})
	}
}

func TestEmptyInputs(t *testing.T) {
	for _, s := range []Strategy{NearestNote{}, NewRandom(rand.New(rand.NewSource(1)))} {
		assert.Empty(t, s.Map(nil, []int{60}))
		assert.Empty(t, s.Map([]int{60}, nil))
	}
}

func randomPitchSet(rng *rand.Rand) []int {
	n := 1 + rng.Intn(10)
	seen := map[int]bool{}
	var out []int
	for len(out) < n {
		p := 36 + rng.Intn(48)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func flatten(as []Assignment) []int {
	var out []int
	for _, a := range as {
		out = append(out, a.Targets...)
	}
	sort.Ints(out)
	return out
}

func TestRandomIsBijective(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	strat := NewRandom(rand.New(rand.NewSource(7)))

	for i := 0; i < 2000; i++ {
		sources := randomPitchSet(rng)
		targets := randomPitchSet(rng)

		got := strat.Map(sources, targets)
		require.Len(t, got, len(sources))
		for k, a := range got {
			assert.Equal(t, sources[k], a.Source)
		}
		assert.Equal(t, targets, flatten(got), "sources %v targets %v", sources, targets)
	}
}

func TestNearestNoteCoversEveryTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 2000; i++ {
		sources := randomPitchSet(rng)
		targets := randomPitchSet(rng)

		got := NearestNote{}.Map(sources, targets)
		require.Len(t, got, len(sources))

		covered := map[int]bool{}
		for _, a := range got {
			assert.NotEmpty(t, a.Targets, "source %d left without target", a.Source)
			for _, tgt := range a.Targets {
				covered[tgt] = true
			}
		}
		assert.Len(t, covered, len(targets))
		for _, tgt := range targets {
			assert.True(t, covered[tgt])
		}
	}
}

func TestRandomDeterministicWithSeed(t *testing.T) {
	a := NewRandom(rand.New(rand.NewSource(99))).Map([]int{60, 64, 67}, []int{59, 62, 65, 69})
	b := NewRandom(rand.New(rand.NewSource(99))).Map([]int{60, 64, 67}, []int{59, 62, 65, 69})
	assert.Equal(t, a, b)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Random")
	require.NoError(t, err)
	assert.Equal(t, KindRandom, k)

	k, err = ParseKind("nearest")
	require.NoError(t, err)
	assert.Equal(t, KindNearest, k)

	_, err = ParseKind("closest")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	var u Kind
	require.NoError(t, u.UnmarshalText([]byte("random")))
	assert.Equal(t, KindRandom, u)
	assert.IsType(t, &Random{}, New(KindRandom, nil))
	assert.IsType(t, NearestNote{}, New(KindNearest, nil))
}
