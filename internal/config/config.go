// Package config loads and saves the chordglide settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/icco/chordglide/internal/audio"
	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/voicemap"
)

// ErrInvalid is returned for settings outside their allowed range.
var ErrInvalid = errors.New("invalid config")

// Config is the settings file.
type Config struct {
	GlideMs   float64       `json:"glideMs"`
	BendRange float64       `json:"bendRange"`
	Strategy  voicemap.Kind `json:"strategy"`
	Seed      int64         `json:"seed,omitempty"` // 0 seeds from the clock

	SampleRate float64 `json:"sampleRate"`
	BlockSize  int     `json:"blockSize"`

	InPort      string `json:"inPort,omitempty"`
	OutPort     string `json:"outPort,omitempty"`
	VirtualName string `json:"virtualName,omitempty"`
	HTTPAddr    string `json:"httpAddr,omitempty"`

	SingleNotes      string  `json:"singleNotes,omitempty"`
	PassthroughOther bool    `json:"passthroughOther"`
	ChordWindowMs    float64 `json:"chordWindowMs"`

	SynthWave   string  `json:"synthWave,omitempty"`
	SynthVolume float64 `json:"synthVolume"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	p := engine.DefaultParams()
	return &Config{
		GlideMs:          p.GlideMs,
		BendRange:        p.BendRange,
		Strategy:         p.Strategy,
		SampleRate:       48000,
		BlockSize:        256,
		VirtualName:      "chordglide",
		SingleNotes:      engine.SinglesPassthrough.String(),
		PassthroughOther: true,
		ChordWindowMs:    15,
		SynthWave:        audio.WaveTriangle.String(),
		SynthVolume:      0.3,
	}
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chordglide"), nil
}

// Path returns the full path to config.json
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile reads the config at path. Fields missing from the file keep their
// defaults; a missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.SampleRate < 8000 || c.SampleRate > 384000 {
		return fmt.Errorf("%w: sample rate %v", ErrInvalid, c.SampleRate)
	}
	if c.BlockSize < 1 || c.BlockSize > 8192 {
		return fmt.Errorf("%w: block size %d", ErrInvalid, c.BlockSize)
	}
	if _, err := engine.ParseSinglePolicy(c.SingleNotes); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.ChordWindowMs < 0 || c.ChordWindowMs > 100 {
		return fmt.Errorf("%w: chord window %v ms", ErrInvalid, c.ChordWindowMs)
	}
	if _, err := audio.ParseWave(c.SynthWave); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.SynthVolume < 0 || c.SynthVolume > 1 {
		return fmt.Errorf("%w: synth volume %v", ErrInvalid, c.SynthVolume)
	}
	return nil
}

// ChordWindow returns how long live input waits for the rest of a chord.
func (c *Config) ChordWindow() time.Duration {
	return time.Duration(c.ChordWindowMs * float64(time.Millisecond))
}

// Wave returns the preview synth's oscillator shape.
func (c *Config) Wave() audio.WaveType {
	w, err := audio.ParseWave(c.SynthWave)
	if err != nil {
		return audio.WaveTriangle
	}
	return w
}

// Params returns the engine parameters.
func (c *Config) Params() engine.Params {
	return engine.Params{
		GlideMs:   c.GlideMs,
		BendRange: c.BendRange,
		Strategy:  c.Strategy,
	}
}

// SetParams stores the engine parameters.
func (c *Config) SetParams(p engine.Params) {
	c.GlideMs = p.GlideMs
	c.BendRange = p.BendRange
	c.Strategy = p.Strategy
}

// SinglePolicy returns the single-note policy, defaulting to passthrough.
func (c *Config) SinglePolicy() engine.SinglePolicy {
	p, err := engine.ParseSinglePolicy(c.SingleNotes)
	if err != nil {
		return engine.SinglesPassthrough
	}
	return p
}

// EngineOptions returns the engine options the config describes.
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithSingleNotes(c.SinglePolicy()),
		engine.WithPassthrough(c.PassthroughOther),
	}
	if c.Seed != 0 {
		opts = append(opts, engine.WithSeed(c.Seed))
	}
	return opts
}
