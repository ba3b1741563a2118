package proctor

import "time"

// State is a point-in-time view of a monitored session. Values returned by
// Session are copies and safe to retain.
type State struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`

	Status         Status `json:"status"`
	WarningCount   int    `json:"warningCount"`
	SuspicionScore int    `json:"suspicionScore"`

	FaceDetected bool     `json:"faceDetected"`
	FaceCount    int      `json:"faceCount"`
	HeadPose     HeadPose `json:"headPose"`
	EyeGaze      EyeGaze  `json:"eyeGaze"`

	AudioLevel    float64 `json:"audioLevel"`
	AudioDetected bool    `json:"audioDetected"`

	LookAwayStartedAt *time.Time `json:"lookAwayStartedAt,omitempty"`
	ExaminerMode      bool       `json:"examinerMode"`

	Events []Event `json:"events"`
}

// initialState is the at-rest value of a session.
func initialState(id string) State {
	return State{
		ID:       id,
		Status:   Normal,
		HeadPose: PoseCenter,
		EyeGaze:  GazeCenter,
		Events:   []Event{},
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := s
	if s.LookAwayStartedAt != nil {
		t := *s.LookAwayStartedAt
		c.LookAwayStartedAt = &t
	}
	c.Events = make([]Event, len(s.Events))
	copy(c.Events, s.Events)
	return c
}

// LookingAway reports whether a look-away episode is in progress.
func (s State) LookingAway() bool {
	return s.LookAwayStartedAt != nil
}
