// Package app is the examiner console: a Bubble Tea model over the server's
// WebSocket feed with session actions sent through the HTTP API.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/mattn/go-runewidth"

	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/tui/client"
	"github.com/proctorai/proctor/internal/tui/theme"
)

const (
	listWidth     = 28
	gaugeWidth    = 30
	maxLogEntries = 12
)

// Actioner performs session actions. *client.HTTPClient satisfies it.
type Actioner interface {
	Action(sessionID, action string) (*proctor.State, error)
}

// actionResultMsg carries the outcome of an HTTP action.
type actionResultMsg struct {
	action string
	state  *proctor.State
	err    error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws      *client.WSClient
	actions Actioner
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time

	keys   KeyMap
	width  int
	height int
	gauge  progress.Model

	sessions map[string]*proctor.State
	order    []string // creation order as first seen
	selected int

	connected bool
	notice    string
}

// New creates the root model.
func New(ws *client.WSClient, actions Actioner) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:       ws,
		actions:  actions,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		keys:     DefaultKeyMap(),
		gauge:    progress.New(progress.WithGradient(theme.GaugeLow, theme.GaugeHigh), progress.WithWidth(gaugeWidth), progress.WithoutPercentage()),
		sessions: make(map[string]*proctor.State),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.notice = ""
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.applySnapshot(msg.Payload.Sessions)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDeltaMsg:
		m.applyDelta(msg.Payload)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSErrorMsg:
		m.notice = "server: " + msg.Payload.Message
		return m, m.ws.ReadLoop(m.ctx)

	case actionResultMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, nil
		}
		m.notice = ""
		m.upsert(msg.state)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if len(m.order) > 0 {
			m.selected = (m.selected + 1) % len(m.order)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.order) > 0 {
			m.selected = (m.selected - 1 + len(m.order)) % len(m.order)
		}
		return m, nil

	case key.Matches(msg, m.keys.Resync):
		if m.ws != nil {
			if err := m.ws.Resync(); err != nil {
				m.notice = "resync: " + err.Error()
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		st := m.current()
		if st == nil {
			return m, nil
		}
		if st.Active {
			return m, m.act(st.ID, "stop")
		}
		return m, m.act(st.ID, "start")

	case key.Matches(msg, m.keys.Examiner):
		return m, m.actOnSelected("examiner")

	case key.Matches(msg, m.keys.Warning):
		return m, m.actOnSelected("warning")

	case key.Matches(msg, m.keys.Reset):
		return m, m.actOnSelected("reset")
	}

	return m, nil
}

func (m Model) actOnSelected(action string) tea.Cmd {
	st := m.current()
	if st == nil {
		return nil
	}
	return m.act(st.ID, action)
}

func (m Model) act(id, action string) tea.Cmd {
	if m.actions == nil {
		return nil
	}
	actions := m.actions
	return func() tea.Msg {
		st, err := actions.Action(id, action)
		return actionResultMsg{action: action, state: st, err: err}
	}
}

func (m *Model) applySnapshot(states []*proctor.State) {
	selectedID := m.selectedID()
	m.sessions = make(map[string]*proctor.State, len(states))
	m.order = make([]string, 0, len(states))
	for _, st := range states {
		m.sessions[st.ID] = st
		m.order = append(m.order, st.ID)
	}
	m.reselect(selectedID)
}

func (m *Model) applyDelta(d client.DeltaPayload) {
	selectedID := m.selectedID()
	for _, st := range d.Updates {
		m.upsert(st)
	}
	for _, id := range d.Removed {
		if _, ok := m.sessions[id]; !ok {
			continue
		}
		delete(m.sessions, id)
		for i, oid := range m.order {
			if oid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.reselect(selectedID)
}

func (m *Model) upsert(st *proctor.State) {
	if st == nil {
		return
	}
	if _, ok := m.sessions[st.ID]; !ok {
		m.order = append(m.order, st.ID)
	}
	m.sessions[st.ID] = st
}

// reselect keeps the cursor on the same session across list changes.
func (m *Model) reselect(id string) {
	for i, oid := range m.order {
		if oid == id {
			m.selected = i
			return
		}
	}
	if m.selected >= len(m.order) {
		m.selected = max(len(m.order)-1, 0)
	}
}

func (m Model) selectedID() string {
	if m.selected < len(m.order) {
		return m.order[m.selected]
	}
	return ""
}

func (m Model) current() *proctor.State {
	if id := m.selectedID(); id != "" {
		return m.sessions[id]
	}
	return nil
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(), "  ", m.renderDetail())
	sections := []string{m.renderStatusBar(), body}
	if !m.connected {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).
			Render("  DISCONNECTED  Reconnecting..."))
	}
	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  "+m.notice))
	}
	sections = append(sections, m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatusBar() string {
	var conn string
	if m.connected {
		conn = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		conn = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	counts := map[proctor.Status]int{}
	active := 0
	for _, st := range m.sessions {
		counts[st.Status]++
		if st.Active {
			active++
		}
	}
	summary := fmt.Sprintf("%s  %d active  %d warning  %d suspicious",
		english.Plural(len(m.sessions), "session", "sessions"), active, counts[proctor.Warning], counts[proctor.Suspicious])

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	return lipgloss.NewStyle().Width(max(m.width, 40)).Padding(0, 1).Render(conn + sep + summary)
}

func (m Model) renderList() string {
	lines := []string{theme.StyleHeader.Render("SESSIONS")}
	if len(m.order) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("No sessions"))
	}
	for i, id := range m.order {
		st := m.sessions[id]
		prefix := "  "
		name := truncate(id, listWidth-4)
		if i == m.selected {
			prefix = "> "
			name = theme.StyleSelected.Render(name)
		}
		glyph := lipgloss.NewStyle().Foreground(theme.StatusColor(st.Status)).Render(theme.StatusGlyph(st.Status))
		lines = append(lines, prefix+glyph+" "+name)
	}
	return lipgloss.NewStyle().Width(listWidth).Render(strings.Join(lines, "\n"))
}

func (m Model) renderDetail() string {
	st := m.current()
	if st == nil {
		return theme.StyleDimmed.Render("Select a session")
	}
	width := max(m.width-listWidth-4, 30)

	title := theme.StyleHeader.Render(truncate(st.ID, width-12))
	if st.ExaminerMode {
		title += "  " + theme.StyleExaminer.Render("[examiner]")
	}

	state := "stopped"
	if st.Active {
		state = "monitoring"
	}

	lines := []string{
		title,
		theme.StatusBadge(st.Status, st.Active) + theme.StyleDimmed.Render("  "+state),
		fmt.Sprintf("Suspicion %s %3d/%d", m.gauge.ViewAs(float64(st.SuspicionScore)/proctor.MaxScore), st.SuspicionScore, proctor.MaxScore),
		fmt.Sprintf("Warnings  %d", st.WarningCount),
		"",
		fmt.Sprintf("Face      %s", describeFace(st)),
		fmt.Sprintf("Head      %s", m.describePose(st)),
		fmt.Sprintf("Gaze      %s", st.EyeGaze),
		fmt.Sprintf("Audio     %s", describeAudio(st)),
		"",
		theme.StyleHeader.Render("EVENTS"),
	}
	lines = append(lines, m.renderEvents(st.Events, width)...)
	return strings.Join(lines, "\n")
}

func (m Model) renderEvents(events []proctor.Event, width int) []string {
	if len(events) == 0 {
		return []string{theme.StyleDimmed.Render("No events")}
	}
	if len(events) > maxLogEntries {
		events = events[:maxLogEntries]
	}
	now := m.now()
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		when := humanize.RelTime(ev.Timestamp, now, "ago", "from now")
		head := fmt.Sprintf("%-16s", when)
		text := truncate(ev.Description, width-runewidth.StringWidth(head)-2)
		if text == "" {
			text = ev.Type.String()
		}
		color := theme.StatusColor(ev.Severity)
		lines = append(lines, theme.StyleDimmed.Render(head)+" "+lipgloss.NewStyle().Foreground(color).Render(text))
	}
	return lines
}

func (m Model) describePose(st *proctor.State) string {
	if st.LookAwayStartedAt == nil {
		return st.HeadPose.String()
	}
	away := strings.TrimSpace(humanize.RelTime(*st.LookAwayStartedAt, m.now(), "", ""))
	return fmt.Sprintf("%s for %s", st.HeadPose, away)
}

func describeFace(st *proctor.State) string {
	switch {
	case !st.FaceDetected:
		return "not detected"
	case st.FaceCount > 1:
		return fmt.Sprintf("%d faces", st.FaceCount)
	default:
		return "detected"
	}
}

func describeAudio(st *proctor.State) string {
	level := fmt.Sprintf("%3.0f%%", st.AudioLevel)
	if st.AudioDetected {
		return level + "  talking"
	}
	return level
}

func (m Model) renderHelp() string {
	parts := make([]string, 0, len(m.keys.Help()))
	for _, b := range m.keys.Help() {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return theme.StyleDimmed.Render("  " + strings.Join(parts, "  "))
}

// truncate shortens s to at most width terminal cells, marking the cut with
// an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
