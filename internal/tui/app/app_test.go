package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/tui/client"
)

type fakeActions struct {
	calls []string
	err   error
	state *proctor.State
}

func (f *fakeActions) Action(id, action string) (*proctor.State, error) {
	f.calls = append(f.calls, id+"/"+action)
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

var now = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestModel(actions Actioner) Model {
	m := New(client.NewWSClient("ws://127.0.0.1:0/ws", ""), actions)
	m.now = func() time.Time { return now }
	m.width, m.height = 120, 40
	return m
}

func states(ids ...string) []*proctor.State {
	out := make([]*proctor.State, 0, len(ids))
	for _, id := range ids {
		out = append(out, &proctor.State{ID: id, Active: true, FaceDetected: true, FaceCount: 1})
	}
	return out
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSnapshotReplacesSessions(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: states("a", "b", "c")}})
	if len(m.order) != 3 || m.selectedID() != "a" {
		t.Fatalf("order = %v, selected = %q", m.order, m.selectedID())
	}

	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: states("c")}})
	if len(m.sessions) != 1 || m.selectedID() != "c" {
		t.Fatalf("sessions = %v, selected = %q", m.order, m.selectedID())
	}
}

func TestDeltaKeepsSelection(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: states("a", "b", "c")}})
	m, _ = update(t, m, keyMsg("j"))
	m, _ = update(t, m, keyMsg("j"))
	if m.selectedID() != "c" {
		t.Fatalf("selected = %q, want c", m.selectedID())
	}

	upd := &proctor.State{ID: "c", Status: proctor.Warning, WarningCount: 1}
	m, _ = update(t, m, client.WSDeltaMsg{Payload: client.DeltaPayload{
		Updates: []*proctor.State{upd, {ID: "d"}},
		Removed: []string{"a", "missing"},
	}})

	want := []string{"b", "c", "d"}
	if strings.Join(m.order, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", m.order, want)
	}
	if m.selectedID() != "c" {
		t.Errorf("selected = %q, want c", m.selectedID())
	}
	if m.current().Status != proctor.Warning {
		t.Errorf("status = %v, want warning", m.current().Status)
	}
}

func TestRemovingSelectedClampsCursor(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: states("a", "b")}})
	m, _ = update(t, m, keyMsg("j"))
	m, _ = update(t, m, client.WSDeltaMsg{Payload: client.DeltaPayload{Removed: []string{"b"}}})
	if m.selectedID() != "a" {
		t.Fatalf("selected = %q, want a", m.selectedID())
	}
	m, _ = update(t, m, client.WSDeltaMsg{Payload: client.DeltaPayload{Removed: []string{"a"}}})
	if m.current() != nil {
		t.Fatalf("current = %+v, want nil", m.current())
	}
}

func TestNavigationWraps(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, keyMsg("k"))
	if m.selected != 0 {
		t.Fatalf("empty list moved cursor to %d", m.selected)
	}
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: states("a", "b", "c")}})
	m, _ = update(t, m, keyMsg("k"))
	if m.selectedID() != "c" {
		t.Errorf("up from first = %q, want c", m.selectedID())
	}
	m, _ = update(t, m, keyMsg("j"))
	if m.selectedID() != "a" {
		t.Errorf("down from last = %q, want a", m.selectedID())
	}
}

func TestActionKeys(t *testing.T) {
	tests := []struct {
		key    string
		active bool
		want   string
	}{
		{"e", true, "a/examiner"},
		{"w", true, "a/warning"},
		{"x", true, "a/reset"},
		{"s", true, "a/stop"},
		{"s", false, "a/start"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			result := &proctor.State{ID: "a", ExaminerMode: true}
			fake := &fakeActions{state: result}
			m := newTestModel(fake)
			snap := states("a")
			snap[0].Active = tt.active
			m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: snap}})

			m, cmd := update(t, m, keyMsg(tt.key))
			if cmd == nil {
				t.Fatal("expected a command")
			}
			m, _ = update(t, m, cmd())
			if len(fake.calls) != 1 || fake.calls[0] != tt.want {
				t.Fatalf("calls = %v, want [%s]", fake.calls, tt.want)
			}
			if !m.current().ExaminerMode {
				t.Error("action result not applied")
			}
		})
	}
}

func TestActionWithoutSelection(t *testing.T) {
	fake := &fakeActions{}
	m := newTestModel(fake)
	if _, cmd := update(t, m, keyMsg("e")); cmd != nil {
		t.Fatal("expected no command without a selected session")
	}
}

func TestActionFailureShowsNotice(t *testing.T) {
	fake := &fakeActions{err: errors.New("boom")}
	m := newTestModel(fake)
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: states("a")}})
	m, cmd := update(t, m, keyMsg("w"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.notice, "warning failed: boom") {
		t.Fatalf("notice = %q", m.notice)
	}
	if !strings.Contains(m.View(), "warning failed") {
		t.Error("notice not rendered")
	}
}

func TestConnectionState(t *testing.T) {
	m := newTestModel(nil)
	if !strings.Contains(m.View(), "DISCONNECTED") || !strings.Contains(m.View(), "Reconnecting") {
		t.Fatal("expected disconnected overlay before connecting")
	}

	m, cmd := update(t, m, client.WSConnectedMsg{})
	if !m.connected || cmd == nil {
		t.Fatal("expected connected state and a read command")
	}
	if strings.Contains(m.View(), "DISCONNECTED") {
		t.Error("overlay still shown while connected")
	}

	m, cmd = update(t, m, client.WSDisconnectedMsg{Err: errors.New("closed")})
	if m.connected || cmd == nil {
		t.Fatal("expected disconnected state and a reconnect command")
	}
}

func TestServerErrorNotice(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, client.WSErrorMsg{Payload: client.ErrorPayload{Message: "too many connections"}})
	if m.notice != "server: too many connections" {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestViewBeforeResize(t *testing.T) {
	m := New(client.NewWSClient("ws://127.0.0.1:0/ws", ""), nil)
	if got := m.View(); got != "Initializing..." {
		t.Fatalf("View() = %q", got)
	}
}

func TestDetailRendersSession(t *testing.T) {
	m := newTestModel(nil)
	started := now.Add(-4 * time.Second)
	st := &proctor.State{
		ID:                "exam-42",
		Active:            true,
		Status:            proctor.Suspicious,
		WarningCount:      3,
		SuspicionScore:    65,
		FaceDetected:      true,
		FaceCount:         2,
		HeadPose:          proctor.PoseLeft,
		EyeGaze:           proctor.GazeRight,
		AudioLevel:        42,
		AudioDetected:     true,
		LookAwayStartedAt: &started,
		ExaminerMode:      true,
		Events: []proctor.Event{
			{Timestamp: now.Add(-3 * time.Minute), Type: proctor.EventMultipleFaces, Description: "Multiple faces detected (2)", Severity: proctor.Suspicious},
		},
	}
	m, _ = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{Sessions: []*proctor.State{st}}})
	m, _ = update(t, m, client.WSConnectedMsg{})

	view := m.View()
	for _, want := range []string{
		"exam-42", "[examiner]", "suspicious", "65/100", "Warnings  3",
		"2 faces", "left for 4 seconds", "right", "talking",
		"3 minutes ago", "Multiple faces detected (2)",
		"1 session  1 active  0 warning  1 suspicious",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestEventsFallBackToType(t *testing.T) {
	m := newTestModel(nil)
	lines := m.renderEvents([]proctor.Event{{Timestamp: now, Type: proctor.EventFaceLost}}, 60)
	if len(lines) != 1 || !strings.Contains(lines[0], proctor.EventFaceLost.String()) {
		t.Fatalf("lines = %q", lines)
	}
	if got := m.renderEvents(nil, 60); !strings.Contains(got[0], "No events") {
		t.Fatalf("empty log = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"a-very-long-session-id", 8, "a-very-…"},
		{"試験セッション", 6, "試験…"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
