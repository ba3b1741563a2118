package session

import (
	"crypto/sha256"
	"fmt"

	"github.com/proctorai/proctor/internal/proctor"
)

// ViewFilter masks session state before it is broadcast to viewers. The
// zero value is a no-op filter.
type ViewFilter struct {
	// MaskSessionIDs replaces ids with a short stable hash, for sessions
	// named after candidates.
	MaskSessionIDs bool
	// HideDiagnostics strips detection detail (eye gaze, raw audio level and
	// look-away start) from sessions that are not in examiner mode.
	HideDiagnostics bool
}

// Apply returns a masked copy of st. The original is never modified.
func (f *ViewFilter) Apply(st *proctor.State) *proctor.State {
	masked := st.Clone()

	if f.MaskSessionIDs && masked.ID != "" {
		masked.ID = shortHash(masked.ID)
	}

	if f.HideDiagnostics && !masked.ExaminerMode {
		masked.EyeGaze = proctor.GazeCenter
		masked.AudioLevel = 0
		masked.LookAwayStartedAt = nil
	}

	return &masked
}

// ApplyID masks a bare session id, for removal notices.
func (f *ViewFilter) ApplyID(id string) string {
	if f.MaskSessionIDs && id != "" {
		return shortHash(id)
	}
	return id
}

// FilterSlice returns masked copies of every state. The input slice is not
// modified.
func (f *ViewFilter) FilterSlice(states []*proctor.State) []*proctor.State {
	result := make([]*proctor.State, 0, len(states))
	for _, st := range states {
		result = append(result, f.Apply(st))
	}
	return result
}

// IsNoop reports whether the filter does nothing.
func (f *ViewFilter) IsNoop() bool {
	return !f.MaskSessionIDs && !f.HideDiagnostics
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
