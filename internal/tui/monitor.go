// Package tui is the live monitor for a running engine.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"

	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/host"
	"github.com/icco/chordglide/internal/mpe"
	"github.com/icco/chordglide/internal/voicemap"
)

const (
	fps         = 30
	glideStep   = 10 // ms
	rangeStep   = 1  // semitones
	meterWidth  = 21
	messageLife = 3 * time.Second
)

// Source is the engine as seen by the monitor.
type Source interface {
	Snapshot() engine.Snapshot
	Reset()
}

// tickMsg drives the refresh
type tickMsg time.Time

// meter is a spring-smoothed bend display for one member channel.
type meter struct {
	pos float64
	vel float64
}

// Model is the bubbletea model of the monitor.
type Model struct {
	src    Source
	store  *host.Store
	title  string
	snap   engine.Snapshot
	spring harmonica.Spring
	meters [mpe.NumMembers]meter

	message   string
	messageAt time.Time
	width     int
}

// New returns a monitor showing src and editing store. title names the ports
// in use.
func New(src Source, store *host.Store, title string) Model {
	return Model{
		src:    src,
		store:  store,
		title:  title,
		snap:   src.Snapshot(),
		spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 0.9),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles keys and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		if !m.messageAt.IsZero() && time.Time(msg).Sub(m.messageAt) > messageLife {
			m.message = ""
		}
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) refresh() {
	m.snap = m.src.Snapshot()

	var targets [mpe.NumMembers]float64
	for _, v := range m.snap.Voices {
		if !mpe.IsMember(v.Channel) || m.snap.Params.BendRange <= 0 {
			continue
		}
		targets[v.Channel-mpe.FirstMember] = mpe.Clamp(v.Bend/m.snap.Params.BendRange, -1, 1)
	}
	for i := range m.meters {
		mt := &m.meters[i]
		mt.pos, mt.vel = m.spring.Update(mt.pos, mt.vel, targets[i])
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var edit func(*engine.Params)

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "+", "=":
		edit = func(p *engine.Params) { p.GlideMs += glideStep }
	case "-", "_":
		edit = func(p *engine.Params) { p.GlideMs -= glideStep }
	case "]":
		edit = func(p *engine.Params) { p.BendRange += rangeStep }
	case "[":
		edit = func(p *engine.Params) { p.BendRange -= rangeStep }
	case "s":
		edit = func(p *engine.Params) {
			if p.Strategy == voicemap.KindNearest {
				p.Strategy = voicemap.KindRandom
			} else {
				p.Strategy = voicemap.KindNearest
			}
		}
	case "r":
		m.src.Reset()
		m.say("engine reset")
		return m, nil
	default:
		return m, nil
	}

	p, err := m.store.Update(edit)
	if err != nil {
		m.say(err.Error())
		return m, nil
	}
	m.say(fmt.Sprintf("glide %.0f ms, bend range %.0f, %s", p.GlideMs, p.BendRange, p.Strategy))
	return m, nil
}

func (m *Model) say(s string) {
	m.message = s
	m.messageAt = time.Now()
}
