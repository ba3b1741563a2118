package session

import (
	"testing"
	"time"

	"github.com/proctorai/proctor/internal/proctor"
)

func sampleState(examiner bool) *proctor.State {
	started := epoch.Add(-2 * time.Second)
	return &proctor.State{
		ID:                "candidate-jane-doe",
		Status:            proctor.Warning,
		HeadPose:          proctor.PoseLeft,
		EyeGaze:           proctor.GazeRight,
		AudioLevel:        37,
		LookAwayStartedAt: &started,
		ExaminerMode:      examiner,
		Events:            []proctor.Event{{ID: "e1"}},
	}
}

func TestViewFilter_Apply(t *testing.T) {
	t.Run("mask session IDs", func(t *testing.T) {
		original := sampleState(false)
		f := &ViewFilter{MaskSessionIDs: true}
		result := f.Apply(original)
		if result.ID == original.ID || len(result.ID) != 12 {
			t.Errorf("session ID not masked: %q", result.ID)
		}
		if original.ID != "candidate-jane-doe" {
			t.Error("original was modified")
		}
		if f.ApplyID(original.ID) != result.ID {
			t.Error("ApplyID disagrees with Apply")
		}
	})

	t.Run("hide diagnostics outside examiner mode", func(t *testing.T) {
		original := sampleState(false)
		f := &ViewFilter{HideDiagnostics: true}
		result := f.Apply(original)
		if result.EyeGaze != proctor.GazeCenter || result.AudioLevel != 0 || result.LookAwayStartedAt != nil {
			t.Errorf("diagnostics not hidden: %+v", result)
		}
		if result.HeadPose != proctor.PoseLeft || result.Status != proctor.Warning {
			t.Error("verdict fields must survive masking")
		}
		if original.EyeGaze != proctor.GazeRight || original.LookAwayStartedAt == nil {
			t.Error("original was modified")
		}
	})

	t.Run("examiner mode keeps diagnostics", func(t *testing.T) {
		f := &ViewFilter{HideDiagnostics: true}
		result := f.Apply(sampleState(true))
		if result.EyeGaze != proctor.GazeRight || result.AudioLevel != 37 || result.LookAwayStartedAt == nil {
			t.Errorf("examiner view lost diagnostics: %+v", result)
		}
	})

	t.Run("no masking is noop", func(t *testing.T) {
		original := sampleState(false)
		f := &ViewFilter{}
		result := f.Apply(original)
		if result.ID != original.ID || result.EyeGaze != original.EyeGaze || result.AudioLevel != original.AudioLevel {
			t.Error("no-op filter should not change any fields")
		}
		if f.ApplyID("x") != "x" {
			t.Error("no-op ApplyID changed the id")
		}
	})
}

func TestViewFilter_FilterSlice(t *testing.T) {
	states := []*proctor.State{sampleState(false), sampleState(true)}
	f := &ViewFilter{HideDiagnostics: true}

	result := f.FilterSlice(states)
	if len(result) != 2 {
		t.Fatalf("expected 2 states, got %d", len(result))
	}
	if result[0].AudioLevel != 0 || result[1].AudioLevel != 37 {
		t.Errorf("audio levels = %v/%v, want 0/37", result[0].AudioLevel, result[1].AudioLevel)
	}
	if states[0].AudioLevel != 37 {
		t.Error("input slice was modified")
	}
}

func TestViewFilter_IsNoop(t *testing.T) {
	if f := (&ViewFilter{}); !f.IsNoop() {
		t.Error("zero value filter should be noop")
	}
	if f := (&ViewFilter{HideDiagnostics: true}); f.IsNoop() {
		t.Error("filter hiding diagnostics should not be noop")
	}
}
