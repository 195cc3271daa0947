package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/icco/chordglide/internal/chord"
	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/glide"
	"github.com/icco/chordglide/internal/mpe"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	chordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true)

	glidingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444444"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAFF"))
)

// View renders the monitor.
func (m Model) View() string {
	var b strings.Builder
	s := m.snap

	b.WriteString(titleStyle.Render("chordglide") + " " + subtitleStyle.Render(m.title) + "\n\n")

	latencyMs := 0.0
	if s.SampleRate > 0 {
		latencyMs = float64(s.Latency) / s.SampleRate * 1000
	}
	b.WriteString(fmt.Sprintf("Glide %s  Bend range %s  Strategy %s  Latency %s\n\n",
		chordStyle.Render(fmt.Sprintf("%.0f ms", s.Params.GlideMs)),
		chordStyle.Render(fmt.Sprintf("±%.0f", s.Params.BendRange)),
		chordStyle.Render(s.Params.Strategy.String()),
		chordStyle.Render(fmt.Sprintf("%.1f ms", latencyMs)),
	))

	b.WriteString(subtitleStyle.Render("Current: ") + chordStyle.Render(chordNames(s.Current)) + "\n")
	pending := chordNames(s.Pending)
	if len(s.Pending) > 0 && s.SampleRate > 0 {
		pending += fmt.Sprintf(" in %.0f ms", float64(s.Deadline-s.Now)/s.SampleRate*1000)
	}
	b.WriteString(subtitleStyle.Render("Pending: ") + pending + "\n\n")

	b.WriteString(subtitleStyle.Render("Chan  From  To    State     Progress    Bend") + "\n")
	byChannel := make(map[uint8]engine.VoiceInfo, len(s.Voices))
	for _, v := range s.Voices {
		byChannel[v.Channel] = v
	}
	for i := range mpe.NumMembers {
		ch := mpe.FirstMember + uint8(i) //nolint:gosec // i < 15
		v, ok := byChannel[ch]
		if !ok {
			b.WriteString(idleStyle.Render(fmt.Sprintf("%-4d  ·", ch+1)) + "\n")
			continue
		}
		row := fmt.Sprintf("%-4d  %-5s %-5s %-9s %s  %s",
			ch+1,
			chord.NoteName(v.From),
			chord.NoteName(v.To),
			v.State,
			renderProgress(v.Progress),
			renderMeter(m.meters[i].pos),
		)
		if v.State == glide.Gliding {
			row = glidingStyle.Render(row)
		}
		b.WriteString(row + "\n")
	}

	st := s.Stats
	b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf(
		"chords %d  transitions %d  replaced %d  dropped voices %d  dropped events %d  buffered %d",
		st.Chords, st.Transitions, st.ReplacedChords, st.DroppedVoices, st.DroppedEvents, s.Buffered,
	)) + "\n")

	if m.message != "" {
		b.WriteString("\n" + messageStyle.Render(m.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("+/-: glide time • ]/[: bend range • s: strategy • r: reset • q: quit"))
	return b.String()
}

func chordNames(pitches []int) string {
	if len(pitches) == 0 {
		return "-"
	}
	names := make([]string, len(pitches))
	for i, p := range pitches {
		names[i] = chord.NoteName(uint8(p)) //nolint:gosec // 7-bit
	}
	return strings.Join(names, " ")
}

// renderProgress draws a ten cell bar with a percentage.
func renderProgress(p float64) string {
	filled := int(math.Round(mpe.Clamp(p, 0, 1) * 10))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + fmt.Sprintf("] %3.0f%%", p*100)
}

// renderMeter draws pos in [-1, 1] as a marker on a centered scale.
func renderMeter(pos float64) string {
	half := meterWidth / 2
	at := half + int(math.Round(mpe.Clamp(pos, -1, 1)*float64(half)))
	cells := []rune(strings.Repeat("─", meterWidth))
	cells[half] = '┼'
	cells[at] = '●'
	return string(cells)
}
