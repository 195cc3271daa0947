package host

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/mpe"
	"github.com/icco/chordglide/internal/voicemap"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu   sync.Mutex
	msgs []midi.Message
}

func (r *recorder) Send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) noteOns() [][2]uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][2]uint8
	for _, msg := range r.msgs {
		var ch, key, vel uint8
		if msg.GetNoteStart(&ch, &key, &vel) {
			out = append(out, [2]uint8{ch, key})
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func testParams() engine.Params {
	return engine.Params{GlideMs: 10, BendRange: 12, Strategy: voicemap.KindNearest}
}

func (r *recorder) indexOf(want midi.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, msg := range r.msgs {
		if bytes.Equal(msg, want) {
			return i
		}
	}
	return -1
}

func newTestHost(t *testing.T, rec *recorder) (*Host, time.Time) {
	t.Helper()
	return newHost(t, rec, Config{SampleRate: 1000, BlockSize: 10}, testParams())
}

func newHost(t *testing.T, rec *recorder, cfg Config, p engine.Params) (*Host, time.Time) {
	t.Helper()
	e := engine.New(engine.WithLogger(quiet), engine.WithSeed(1))
	h := New(quiet, cfg, e, NewStore(p), rec)
	t0 := time.Unix(1000, 0)
	h.now = func() time.Time { return t0 }
	h.prepare(t0)
	return h, t0
}

func TestHostSendsConfigurationOnPrepare(t *testing.T) {
	rec := &recorder{}
	newTestHost(t, rec)
	assert.Equal(t, len(mpe.ConfigurationMessages(12)), rec.count())
}

func TestHostPlaysChord(t *testing.T) {
	rec := &recorder{}
	h, t0 := newTestHost(t, rec)
	require.Equal(t, 10, h.engine.Latency())

	for _, p := range []uint8{60, 64, 67} {
		h.deliverAt(t0.Add(5*time.Millisecond), midi.NoteOn(0, p, 100))
	}
	h.step(t0.Add(100 * time.Millisecond))

	assert.Equal(t, [][2]uint8{{1, 60}, {2, 64}, {3, 67}}, rec.noteOns())
	assert.Equal(t, int64(100), h.engine.Now())
	assert.Equal(t, []int{60, 64, 67}, h.Snapshot().Current)
}

func TestHostGroupsNotesWithinBlock(t *testing.T) {
	rec := &recorder{}
	h, t0 := newTestHost(t, rec)

	for i, p := range []uint8{60, 64, 67} {
		h.deliverAt(t0.Add(time.Duration(1+3*i)*time.Millisecond), midi.NoteOn(0, p, 100))
	}
	h.step(t0.Add(100 * time.Millisecond))

	assert.Equal(t, [][2]uint8{{1, 60}, {2, 64}, {3, 67}}, rec.noteOns())
	assert.Equal(t, []int{60, 64, 67}, h.Snapshot().Current)
}

func TestHostChordWindowSpansBlocks(t *testing.T) {
	strum := func(h *Host, t0 time.Time) {
		for i, p := range []uint8{60, 64, 67} {
			h.deliverAt(t0.Add(time.Duration(8+4*i)*time.Millisecond), midi.NoteOn(0, p, 100))
		}
		h.step(t0.Add(100 * time.Millisecond))
	}

	rec := &recorder{}
	h, t0 := newTestHost(t, rec)
	strum(h, t0)
	assert.Equal(t, []int{64, 67}, h.Snapshot().Current, "split at the block boundary")
	assert.Contains(t, rec.noteOns(), [2]uint8{0, 60})

	rec = &recorder{}
	h, t0 = newHost(t, rec, Config{SampleRate: 1000, BlockSize: 10, ChordWindow: 10 * time.Millisecond}, testParams())
	strum(h, t0)
	assert.Equal(t, []int{60, 64, 67}, h.Snapshot().Current)
	assert.Equal(t, [][2]uint8{{1, 60}, {2, 64}, {3, 67}}, rec.noteOns())
}

func TestHostKeepsFutureInput(t *testing.T) {
	rec := &recorder{}
	h, t0 := newTestHost(t, rec)

	h.deliverAt(t0.Add(50*time.Millisecond), midi.NoteOn(0, 60, 100))
	h.step(t0.Add(20 * time.Millisecond))

	h.mu.Lock()
	assert.Len(t, h.inbox, 1)
	h.mu.Unlock()
}

func TestHostBendRangeChangeReconfigures(t *testing.T) {
	rec := &recorder{}
	h, t0 := newTestHost(t, rec)
	before := rec.count()

	_, err := h.params.Update(func(p *engine.Params) { p.BendRange = 24 })
	require.NoError(t, err)
	h.step(t0.Add(10 * time.Millisecond))

	assert.Equal(t, before+len(mpe.ConfigurationMessages(24)), rec.count())
	assert.Equal(t, 24.0, h.bendRange)
}

func TestHostDefersBendRangeDuringGlide(t *testing.T) {
	rec := &recorder{}
	p := testParams()
	p.GlideMs = 100
	h, t0 := newHost(t, rec, Config{SampleRate: 1000, BlockSize: 10}, p)
	require.Equal(t, 100, h.engine.Latency())

	for _, k := range []uint8{60, 64} {
		h.deliverAt(t0.Add(5*time.Millisecond), midi.NoteOn(0, k, 100))
	}
	for _, k := range []uint8{62, 65} {
		h.deliverAt(t0.Add(150*time.Millisecond), midi.NoteOn(0, k, 100))
	}
	h.step(t0.Add(200 * time.Millisecond))
	require.False(t, h.engine.Idle(), "glide from 50 to 150 in flight")

	_, err := h.params.Update(func(p *engine.Params) { p.BendRange = 24 })
	require.NoError(t, err)
	h.step(t0.Add(210 * time.Millisecond))

	sensitivity24 := midi.ControlChange(mpe.FirstMember, 6, 24)
	assert.Equal(t, 12.0, h.bendRange)
	assert.Equal(t, 12.0, h.engine.Params().BendRange)
	assert.Equal(t, -1, rec.indexOf(sensitivity24))

	h.step(t0.Add(300 * time.Millisecond))
	assert.Equal(t, 24.0, h.bendRange)
	assert.Equal(t, 24.0, h.engine.Params().BendRange)

	landed := rec.indexOf(midi.NoteOn(mpe.FirstMember, 62, 100))
	require.GreaterOrEqual(t, landed, 0)
	assert.Greater(t, rec.indexOf(sensitivity24), landed, "reconfigured only after the glide landed")
}

func TestHostReset(t *testing.T) {
	rec := &recorder{}
	h, t0 := newTestHost(t, rec)

	for _, p := range []uint8{60, 64} {
		h.deliverAt(t0, midi.NoteOn(0, p, 100))
	}
	h.step(t0.Add(50 * time.Millisecond))
	require.Len(t, rec.noteOns(), 2)

	h.Reset()
	h.step(t0.Add(60 * time.Millisecond))
	assert.Equal(t, int64(0), h.engine.Now())
	assert.Empty(t, h.Snapshot().Voices)

	var offs int
	for _, msg := range rec.msgs {
		var ch, key uint8
		if msg.GetNoteEnd(&ch, &key) {
			offs++
		}
	}
	assert.Equal(t, 2, offs)
}

func TestHostInboxBounded(t *testing.T) {
	h, _ := newTestHost(t, &recorder{})
	for range maxInbox + 3 {
		h.Deliver(midi.ControlChange(0, 1, 1))
	}
	assert.Equal(t, uint64(3), h.Dropped())
}

func TestHostCountsSendErrors(t *testing.T) {
	e := engine.New(engine.WithLogger(quiet))
	failing := SinkFunc(func(midi.Message) error { return errors.New("unplugged") })
	h := New(quiet, Config{SampleRate: 1000, BlockSize: 10}, e, NewStore(testParams()), failing)
	h.prepare(time.Now())
	assert.Equal(t, uint64(len(mpe.ConfigurationMessages(12))), h.SendErrors())
}

func TestHostRunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	e := engine.New(engine.WithLogger(quiet))
	h := New(quiet, Config{SampleRate: 1000, BlockSize: 10}, e, NewStore(testParams()), rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	// configuration on start, all-notes-off on exit
	assert.GreaterOrEqual(t, rec.count(), len(mpe.ConfigurationMessages(12))+mpe.NumMembers)
}

func TestStore(t *testing.T) {
	s := NewStore(engine.DefaultParams())

	var seen []engine.Params
	s.Subscribe(func(p engine.Params) { seen = append(seen, p) })

	p := s.Get()
	p.GlideMs = 300
	require.NoError(t, s.Set(p))
	require.NoError(t, s.Set(p))
	assert.Len(t, seen, 1)

	_, err := s.Update(func(p *engine.Params) { p.BendRange = 0 })
	assert.Error(t, err)
	assert.Equal(t, 12.0, s.Get().BendRange)
}

func TestStoreConcurrentUpdates(t *testing.T) {
	s := NewStore(engine.DefaultParams())

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(func(p *engine.Params) { p.GlideMs++ })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 300.0, s.Get().GlideMs)
}

func TestMatchPort(t *testing.T) {
	assert.True(t, matchPort("IAC Driver Bus 1", "iac driver"))
	assert.True(t, matchPort("Arturia KeyStep 37:Arturia KeyStep 37 MIDI 1 20:0", "keystep"))
	assert.False(t, matchPort("IAC Driver Bus 1", "Launchpad"))
}
