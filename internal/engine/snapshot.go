package engine

import (
	"github.com/icco/chordglide/internal/glide"
)

// VoiceInfo describes one active voice.
type VoiceInfo struct {
	Channel  uint8       `json:"channel"`
	From     uint8       `json:"from"`
	To       uint8       `json:"to"`
	Start    int64       `json:"start"`
	Duration int64       `json:"duration"`
	State    glide.State `json:"state"`
	Progress float64     `json:"progress"`
	Bend     float64     `json:"bend"` // semitones
}

// Snapshot is a copy of the engine state for display.
type Snapshot struct {
	Params     Params      `json:"params"`
	SampleRate float64     `json:"sampleRate"`
	Latency    int         `json:"latency"`
	Now        int64       `json:"now"`
	Current    []int       `json:"current,omitempty"`
	Pending    []int       `json:"pending,omitempty"`
	Deadline   int64       `json:"deadline,omitempty"`
	Voices     []VoiceInfo `json:"voices"`
	Buffered   int         `json:"buffered"`
	Stats      Stats       `json:"stats"`
}

// Snapshot captures the engine state as of the output position.
func (e *Engine) Snapshot() Snapshot {
	now := e.OutputTime()
	s := Snapshot{
		Params:     e.applied,
		SampleRate: e.sampleRate,
		Latency:    e.lookahead,
		Now:        now,
		Voices:     make([]VoiceInfo, 0, len(e.voices)),
		Buffered:   e.buffer.Len(),
		Stats:      e.stats,
	}
	if c, ok := e.detector.Current(); ok {
		s.Current = c.Pitches()
	}
	if c, ok := e.detector.Pending(); ok {
		s.Pending = c.Pitches()
		s.Deadline = c.Time()
	}
	for i := range e.voices {
		v := &e.voices[i]
		s.Voices = append(s.Voices, VoiceInfo{
			Channel:  v.Channel(),
			From:     v.Origin(),
			To:       v.Target(),
			Start:    v.Start(),
			Duration: v.Duration(),
			State:    v.State(),
			Progress: v.Progress(now),
			Bend:     v.BendOffset(now),
		})
	}
	return s
}
