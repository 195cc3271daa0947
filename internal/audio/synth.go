// Package audio provides a preview synthesizer for MPE output.
package audio

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/ebitengine/oto/v3"
	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/chordglide/internal/mpe"
)

const (
	sampleRate   = 44100
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit

	// DefaultBendRange is the MPE default for member channels.
	DefaultBendRange = 48
)

// WaveType represents different oscillator wave shapes
type WaveType int

const (
	WaveSine WaveType = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
)

// ErrUnknownWave is returned when a wave name cannot be parsed.
var ErrUnknownWave = errors.New("audio: unknown wave")

var waveNames = map[WaveType]string{
	WaveSine:     "sine",
	WaveSquare:   "square",
	WaveSawtooth: "sawtooth",
	WaveTriangle: "triangle",
}

func (w WaveType) String() string {
	if name, ok := waveNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WaveType(%d)", int(w))
}

// ParseWave accepts the names produced by WaveType.String, and "saw".
func ParseWave(s string) (WaveType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "saw" {
		return WaveSawtooth, nil
	}
	for w, n := range waveNames {
		if n == name {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWave, s)
}

// voice is a single playing note
type voice struct {
	note      uint8
	channel   uint8
	velocity  uint8
	phase     float64
	envelope  float64 // 0-1
	releasing bool
	active    bool
}

// channelState follows the per-channel controllers a member channel uses.
type channelState struct {
	bend      float64 // semitones
	bendRaw   uint16
	bendRange float64
	rpnMSB    uint8
	rpnLSB    uint8
}

// Synth is a polyphonic synthesizer with per-channel pitch bend, so each MPE
// member channel glides on its own.
type Synth struct {
	mu           sync.Mutex
	otoCtx       *oto.Context
	player       *oto.Player
	voices       []*voice
	maxVoices    int
	masterVolume float64
	wave         WaveType
	channels     [16]channelState
}

// NewSynth creates a synthesizer playing through the default audio device.
func NewSynth() (*Synth, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	s := newSynth()
	s.otoCtx = otoCtx
	s.player = otoCtx.NewPlayer(&synthReader{synth: s})
	s.player.Play()
	return s, nil
}

func newSynth() *Synth {
	s := &Synth{
		maxVoices:    64,
		masterVolume: 0.3,
		wave:         WaveTriangle,
	}
	for i := range s.channels {
		s.channels[i] = channelState{bendRaw: mpe.BendCenter, bendRange: DefaultBendRange, rpnMSB: 127, rpnLSB: 127}
	}
	return s
}

// synthReader implements io.Reader for continuous audio generation
type synthReader struct {
	synth *Synth
}

func (r *synthReader) Read(buf []byte) (int, error) {
	s := r.synth
	s.mu.Lock()
	defer s.mu.Unlock()

	numSamples := len(buf) / (channelCount * bitDepth)
	for i := range numSamples {
		v := int16(s.nextSample() * 32767)
		idx := i * channelCount * bitDepth
		buf[idx] = byte(v)
		buf[idx+1] = byte(v >> 8)
		buf[idx+2] = byte(v)
		buf[idx+3] = byte(v >> 8)
	}
	return numSamples * channelCount * bitDepth, nil
}

// nextSample mixes one mono sample. s.mu must be held.
func (s *Synth) nextSample() float64 {
	var sample float64
	for _, v := range s.voices {
		if !v.active {
			continue
		}

		velocityScale := float64(v.velocity) / 127.0
		sample += generateWave(s.wave, v.phase) * velocityScale * v.envelope * 0.2

		freq := midiNoteToFreq(float64(v.note) + s.channels[v.channel].bend)
		v.phase += freq / sampleRate
		if v.phase >= 1.0 {
			v.phase -= math.Floor(v.phase)
		}

		if v.releasing {
			v.envelope *= 0.9995
			if v.envelope < 0.001 {
				v.active = false
			}
		} else if v.envelope < 1.0 {
			v.envelope = math.Min(v.envelope+0.001, 1.0)
		}
	}

	return mpe.Clamp(sample*s.masterVolume, -1, 1)
}

func generateWave(waveType WaveType, phase float64) float64 {
	switch waveType {
	case WaveSquare:
		if phase < 0.5 {
			return 0.8
		}
		return -0.8
	case WaveSawtooth:
		return 2*phase - 1
	case WaveTriangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Send plays msg. Note, pitch bend and the bend-sensitivity RPN are
// understood; everything else is ignored. It never fails.
func (s *Synth) Send(msg midi.Message) error {
	var ch, key, vel, cc, val uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		s.NoteOn(ch, key, vel)
	case msg.GetNoteEnd(&ch, &key):
		s.NoteOff(ch, key)
	case msg.GetPitchBend(&ch, &rel, &abs):
		s.PitchBend(ch, abs)
	case msg.GetControlChange(&ch, &cc, &val):
		s.controlChange(ch, cc, val)
	}
	return nil
}

// NoteOn triggers a new note
func (s *Synth) NoteOn(channel, note, velocity uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if velocity == 0 {
		s.noteOffLocked(channel, note)
		return
	}

	// Find an inactive voice or steal the oldest one
	var v *voice
	for _, candidate := range s.voices {
		if !candidate.active {
			v = candidate
			break
		}
	}
	if v == nil {
		if len(s.voices) < s.maxVoices {
			v = &voice{}
			s.voices = append(s.voices, v)
		} else {
			v = s.voices[0]
		}
	}

	*v = voice{
		note:     note,
		channel:  channel & 0x0F,
		velocity: velocity,
		active:   true,
	}
}

// NoteOff releases a note
func (s *Synth) NoteOff(channel, note uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteOffLocked(channel, note)
}

func (s *Synth) noteOffLocked(channel, note uint8) {
	for _, v := range s.voices {
		if v.active && v.note == note && v.channel == channel && !v.releasing {
			v.releasing = true
			break
		}
	}
}

// PitchBend sets the channel's bend from a 14-bit value.
func (s *Synth) PitchBend(channel uint8, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.channels[channel&0x0F]
	c.bendRaw = value
	c.bend = mpe.DecodeBend(value, c.bendRange)
}

// SetBendRange sets the channel's bend sensitivity in semitones.
func (s *Synth) SetBendRange(channel uint8, semitones float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBendRangeLocked(channel, semitones)
}

func (s *Synth) setBendRangeLocked(channel uint8, semitones float64) {
	c := &s.channels[channel&0x0F]
	c.bendRange = semitones
	c.bend = mpe.DecodeBend(c.bendRaw, semitones)
}

// Bend returns the channel's current bend in semitones.
func (s *Synth) Bend(channel uint8) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel&0x0F].bend
}

// BendRange returns the channel's bend sensitivity in semitones.
func (s *Synth) BendRange(channel uint8) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel&0x0F].bendRange
}

func (s *Synth) controlChange(channel, cc, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.channels[channel&0x0F]
	switch cc {
	case 101:
		c.rpnMSB = val
	case 100:
		c.rpnLSB = val
	case 6:
		if c.rpnMSB == 0 && c.rpnLSB == 0 {
			s.setBendRangeLocked(channel, float64(val))
		}
	case 38:
		if c.rpnMSB == 0 && c.rpnLSB == 0 {
			s.setBendRangeLocked(channel, math.Floor(c.bendRange)+float64(val)/100)
		}
	case 120, 123:
		for _, v := range s.voices {
			if v.active && v.channel == channel&0x0F {
				v.releasing = true
			}
		}
	}
}

// AllNotesOff stops all playing notes
func (s *Synth) AllNotesOff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.voices {
		if v.active {
			v.releasing = true
		}
	}
}

// SetWave selects the oscillator shape.
func (s *Synth) SetWave(w WaveType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wave = w
}

// SetVolume sets the master volume (0.0 - 1.0)
func (s *Synth) SetVolume(vol float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterVolume = mpe.Clamp(vol, 0, 1)
}

// Active returns the number of sounding voices.
func (s *Synth) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.voices {
		if v.active && !v.releasing {
			n++
		}
	}
	return n
}

// Close shuts down the synthesizer
func (s *Synth) Close() error {
	s.AllNotesOff()
	// As of oto v3.4, player.Close() is deprecated; the player is cleaned up
	// when garbage collected.
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// midiNoteToFreq converts a fractional MIDI note number to frequency in Hz
func midiNoteToFreq(note float64) float64 {
	// A4 (note 69) = 440 Hz
	return 440.0 * math.Pow(2.0, (note-69.0)/12.0)
}
