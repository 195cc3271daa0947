package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icco/chordglide/internal/audio"
	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/voicemap"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, engine.DefaultParams(), cfg.Params())
	assert.Equal(t, engine.SinglesPassthrough, cfg.SinglePolicy())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.GlideMs = 350
	cfg.Strategy = voicemap.KindRandom
	cfg.Seed = 7
	cfg.OutPort = "IAC Driver Bus 1"
	require.NoError(t, cfg.SaveFile(path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"glideMs": 120, "strategy": "random"}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 120.0, cfg.GlideMs)
	assert.Equal(t, voicemap.KindRandom, cfg.Strategy)
	assert.Equal(t, 12.0, cfg.BendRange)
	assert.Equal(t, 256, cfg.BlockSize)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"syntax":   `{"glideMs": `,
		"glide":    `{"glideMs": 5}`,
		"range":    `{"bendRange": 200}`,
		"strategy": `{"strategy": "loudest"}`,
		"block":    `{"blockSize": 0}`,
		"singles":  `{"singleNotes": "sometimes"}`,
		"window":   `{"chordWindowMs": 500}`,
		"wave":     `{"synthWave": "noise"}`,
		"volume":   `{"synthVolume": 1.5}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateWrapsErrInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 10
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg = DefaultConfig()
	cfg.Strategy = voicemap.Kind(9)
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, voicemap.ErrUnknownStrategy)
}

func TestLiveSettings(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Millisecond, cfg.ChordWindow())
	assert.Equal(t, audio.WaveTriangle, cfg.Wave())

	cfg.ChordWindowMs = 0
	cfg.SynthWave = "square"
	require.NoError(t, cfg.Validate())
	assert.Zero(t, cfg.ChordWindow())
	assert.Equal(t, audio.WaveSquare, cfg.Wave())
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Len(t, cfg.EngineOptions(), 2)
	cfg.Seed = 3
	assert.Len(t, cfg.EngineOptions(), 3)
}
