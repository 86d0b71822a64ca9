// Package screen renders a sensorscan.Session as a Bubble Tea program.
package screen

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kellegous/poop"

	"github.com/kellegous/sensorscan"
)

// Session is the part of *sensorscan.Session the screen drives.
type Session interface {
	AdapterState() sensorscan.AdapterState
	Permitted() bool
	Scanning() bool
	Peripherals() []sensorscan.Peripheral
	StartScan(ctx context.Context)
	Connect(ctx context.Context, id string)
	ReadHumidity(ctx context.Context, id string) (string, bool)
	ReadBattery(ctx context.Context, id string) (string, bool)
	ReadLight(ctx context.Context, id string) ([]float64, bool)
}

// EventMsg carries a session event into the program.
type EventMsg struct {
	Event sensorscan.Event
}

var (
	colorOK    = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorMuted = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorInfo  = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	okStyle       = lipgloss.NewStyle().Foreground(colorOK)
	errorStyle    = lipgloss.NewStyle().Foreground(colorError)
	dimStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	selectedStyle = lipgloss.NewStyle().Bold(true)
)

type Model struct {
	session Session
	ctx     context.Context

	state     sensorscan.AdapterState
	scanning  bool
	devices   []sensorscan.Peripheral
	selected  int
	connected map[string]bool
	busy      string
	readings  map[string]string
	lastErr   string
	quitting  bool
}

func New(ctx context.Context, session Session) Model {
	return Model{
		session:   session,
		ctx:       ctx,
		state:     session.AdapterState(),
		devices:   session.Peripherals(),
		connected: make(map[string]bool),
		readings:  make(map[string]string),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case EventMsg:
		return m.handleEvent(msg.Event), nil
	}
	return m, nil
}

func (m Model) selectedID() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.devices) {
		return "", false
	}
	return m.devices[m.selected].ID, true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case "down", "j":
		if m.selected < len(m.devices)-1 {
			m.selected++
		}
		return m, nil
	case "s":
		if m.scanning {
			return m, nil
		}
		return m, m.run(func(ctx context.Context) {
			m.session.StartScan(ctx)
		})
	}

	id, ok := m.selectedID()
	if !ok {
		return m, nil
	}

	switch msg.String() {
	case "c":
		m.busy = "connecting"
		return m, m.run(func(ctx context.Context) {
			m.session.Connect(ctx, id)
		})
	case "h":
		m.busy = "reading humidity"
		return m, m.run(func(ctx context.Context) {
			m.session.ReadHumidity(ctx, id)
		})
	case "b":
		m.busy = "reading battery"
		return m, m.run(func(ctx context.Context) {
			m.session.ReadBattery(ctx, id)
		})
	case "l":
		m.busy = "reading light"
		return m, m.run(func(ctx context.Context) {
			m.session.ReadLight(ctx, id)
		})
	}
	return m, nil
}

// run performs fn off the update loop. Its results come back as events.
func (m Model) run(fn func(ctx context.Context)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		fn(ctx)
		return nil
	}
}

func (m Model) handleEvent(ev sensorscan.Event) Model {
	switch ev := ev.(type) {
	case sensorscan.StateChangedEvent:
		m.state = ev.State
	case sensorscan.ScanStartedEvent:
		m.scanning = true
	case sensorscan.ScanStoppedEvent:
		m.scanning = false
	case sensorscan.PeripheralDiscoveredEvent:
		for _, d := range m.devices {
			if d.ID == ev.Peripheral.ID {
				return m
			}
		}
		m.devices = append(m.devices, ev.Peripheral)
	case sensorscan.ConnectedEvent:
		m.connected[ev.PeripheralID] = true
		m.busy = ""
		m.lastErr = ""
	case sensorscan.ReadingEvent:
		m.readings[ev.Label] = formatReading(ev)
		m.busy = ""
		m.lastErr = ""
	case sensorscan.FailureEvent:
		m.lastErr = fmt.Sprintf("%s: %v", ev.Op, ev.Err)
		m.busy = ""
	}
	return m
}

func formatReading(ev sensorscan.ReadingEvent) string {
	if ev.Numbers == nil {
		return ev.Value
	}
	parts := make([]string, 0, len(ev.Numbers))
	for _, n := range ev.Numbers {
		parts = append(parts, strconv.FormatFloat(n, 'g', -1, 64))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (m Model) stateLine() string {
	state := m.state.String()
	if m.state.IsPoweredOn() {
		state = okStyle.Render(state)
	} else {
		state = errorStyle.Render(state)
	}
	return "Bluetooth Status: " + state
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Sensor Scan"))
	b.WriteString("\n\n")
	b.WriteString(m.stateLine())
	b.WriteString("\n")

	switch {
	case !m.session.Permitted():
		b.WriteString(errorStyle.Render("Scanning disabled: permission denied"))
	case m.scanning:
		b.WriteString("Scanning...")
	default:
		b.WriteString(dimStyle.Render("Press s to scan"))
	}
	b.WriteString("\n\n")

	if len(m.devices) == 0 {
		b.WriteString(dimStyle.Render("No devices"))
		b.WriteString("\n")
	}
	for i, d := range m.devices {
		cursor := "  "
		if i == m.selected {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%s  %s", cursor, d.DisplayName(), dimStyle.Render(d.ID))
		if m.connected[d.ID] {
			line += okStyle.Render("  connected")
		}
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.readings) > 0 {
		b.WriteString("\n")
		for _, label := range []string{"humidity", "battery", "light"} {
			if v, ok := m.readings[label]; ok {
				fmt.Fprintf(&b, "%s: %s\n", label, v)
			}
		}
	}

	if m.busy != "" {
		b.WriteString("\n" + dimStyle.Render(m.busy+"..."))
	}
	if m.lastErr != "" {
		b.WriteString("\n" + errorStyle.Render(m.lastErr))
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("s scan • ↑/↓ select • c connect • h humidity • b battery • l light • q quit"))
	b.WriteString("\n")

	return b.String()
}

// Forward sends every event to send until the stream ends. It returns the
// error that ended the stream.
func Forward(events iter.Seq2[sensorscan.Event, error], send func(tea.Msg)) error {
	for ev, err := range events {
		if err != nil {
			return poop.Chain(err)
		}
		send(EventMsg{Event: ev})
	}
	return nil
}
