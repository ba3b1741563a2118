package replay

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/proctorai/proctor/internal/clock"
	"github.com/proctorai/proctor/internal/proctor"
)

// Origin is the simulated wall time at which every replay starts.
var Origin = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// Report is the outcome of a replay.
type Report struct {
	Session  string
	Steps    int
	Elapsed  time.Duration
	Final    proctor.State
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Run plays the script against a fresh session built from opts. opts.Clock
// and opts.OnChange are replaced.
func Run(s *Script, opts proctor.Options) *Report {
	clk := clock.NewFake(Origin)
	opts.Clock = clk
	opts.OnChange = nil
	sess := proctor.NewSession(s.Session, opts)
	defer sess.Close()

	var elapsed time.Duration
	for _, step := range s.Steps {
		clk.Advance(step.At - elapsed)
		elapsed = step.At
		apply(sess, step)
	}
	if s.End > elapsed {
		clk.Advance(s.End - elapsed)
		elapsed = s.End
	}

	r := &Report{
		Session: s.Session,
		Steps:   len(s.Steps),
		Elapsed: elapsed,
		Final:   sess.Snapshot(),
	}
	if s.Expect != nil {
		r.Failures = check(s.Expect, r.Final)
	}
	return r
}

func apply(sess *proctor.Session, st Step) {
	if st.FaceDetected != nil {
		sess.SetFaceDetected(*st.FaceDetected)
	}
	if st.FaceCount != nil {
		sess.SetFaceCount(*st.FaceCount)
	}
	if st.HeadPose != "" {
		sess.SetHeadPose(st.pose)
	}
	if st.EyeGaze != "" {
		sess.SetEyeGaze(st.gaze)
	}
	if st.AudioLevel != nil {
		sess.SetAudioLevel(*st.AudioLevel)
	}
	if st.AudioDetected != nil {
		sess.SetAudioDetected(*st.AudioDetected)
	}

	switch st.Action {
	case "start":
		sess.Start()
	case "stop":
		sess.Stop()
	case "reset":
		sess.Reset()
	case "examiner":
		sess.ToggleExaminerMode()
	case "warning":
		sess.IncrementWarning()
	}
}

func check(e *Expectation, st proctor.State) []string {
	var failures []string
	if e.Status != "" && st.Status.String() != e.Status {
		failures = append(failures, fmt.Sprintf("status is %s, expected %s", st.Status, e.Status))
	}
	if e.WarningCount != nil && st.WarningCount != *e.WarningCount {
		failures = append(failures, fmt.Sprintf("warning count is %d, expected %d", st.WarningCount, *e.WarningCount))
	}
	if e.SuspicionScore != nil && st.SuspicionScore != *e.SuspicionScore {
		failures = append(failures, fmt.Sprintf("suspicion score is %d, expected %d", st.SuspicionScore, *e.SuspicionScore))
	}

	counts := make(map[string]int)
	for _, ev := range st.Events {
		counts[ev.Type.String()]++
	}
	names := make([]string, 0, len(e.Events))
	for name := range e.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if got, want := counts[name], e.Events[name]; got != want {
			failures = append(failures, fmt.Sprintf("%s events: %d, expected %d", name, got, want))
		}
	}
	return failures
}

// Write prints a human-readable summary of the report.
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder
	end := Origin.Add(r.Elapsed)
	st := r.Final

	fmt.Fprintf(&b, "Session %s: %s step(s) over %s\n", r.Session, humanize.Comma(int64(r.Steps)), r.Elapsed)
	fmt.Fprintf(&b, "  status     %s\n", st.Status)
	fmt.Fprintf(&b, "  warnings   %d\n", st.WarningCount)
	fmt.Fprintf(&b, "  suspicion  %d/%d\n", st.SuspicionScore, proctor.MaxScore)

	if len(st.Events) > 0 {
		b.WriteString("  events (newest first):\n")
		for _, ev := range st.Events {
			fmt.Fprintf(&b, "    %-16s %-10s %-22s %s\n",
				ev.Type, ev.Severity, humanize.RelTime(ev.Timestamp, end, "before end", "after end"), ev.Description)
		}
	}

	if r.Passed() {
		b.WriteString("PASS\n")
	} else {
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "FAIL: %s\n", f)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
