package proctor

import (
	"encoding/json"
	"fmt"
)

// Status is the session verdict. It doubles as the severity of an Event.
type Status int

const (
	Normal Status = iota
	Warning
	Suspicious
)

var statusNames = map[Status]string{
	Normal:     "normal",
	Warning:    "warning",
	Suspicious: "suspicious",
}

var statusFromName = invert(statusNames)

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseStatus converts "normal", "warning" or "suspicious" into a Status.
func ParseStatus(name string) (Status, error) {
	if s, ok := statusFromName[name]; ok {
		return s, nil
	}
	return Normal, fmt.Errorf("unknown status %q", name)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, statusFromName, "status", s)
}

// HeadPose is the coarse head orientation reported by the camera adapter.
type HeadPose int

const (
	PoseCenter HeadPose = iota
	PoseLeft
	PoseRight
	PoseUp
	PoseDown
)

var poseNames = map[HeadPose]string{
	PoseCenter: "center",
	PoseLeft:   "left",
	PoseRight:  "right",
	PoseUp:     "up",
	PoseDown:   "down",
}

var poseFromName = invert(poseNames)

func (p HeadPose) String() string {
	if n, ok := poseNames[p]; ok {
		return n
	}
	return "unknown"
}

func (p HeadPose) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *HeadPose) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, poseFromName, "head pose", p)
}

// ParseHeadPose converts an adapter label such as "left" into a HeadPose.
func ParseHeadPose(s string) (HeadPose, error) {
	if p, ok := poseFromName[s]; ok {
		return p, nil
	}
	return PoseCenter, fmt.Errorf("unknown head pose %q", s)
}

// EyeGaze is the coarse gaze direction reported by the camera adapter.
type EyeGaze int

const (
	GazeCenter EyeGaze = iota
	GazeLeft
	GazeRight
)

var gazeNames = map[EyeGaze]string{
	GazeCenter: "center",
	GazeLeft:   "left",
	GazeRight:  "right",
}

var gazeFromName = invert(gazeNames)

func (g EyeGaze) String() string {
	if n, ok := gazeNames[g]; ok {
		return n
	}
	return "unknown"
}

func (g EyeGaze) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *EyeGaze) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, gazeFromName, "eye gaze", g)
}

// ParseEyeGaze converts an adapter label such as "right" into an EyeGaze.
func ParseEyeGaze(s string) (EyeGaze, error) {
	if g, ok := gazeFromName[s]; ok {
		return g, nil
	}
	return GazeCenter, fmt.Errorf("unknown eye gaze %q", s)
}

// EventType classifies an entry in the event log.
type EventType int

const (
	EventFaceLost EventType = iota
	EventHeadPose
	EventEyeGaze
	EventWarning
	EventStatusChange
	EventMultipleFaces
	EventAudioDetected
)

var eventTypeNames = map[EventType]string{
	EventFaceLost:      "face_lost",
	EventHeadPose:      "head_pose",
	EventEyeGaze:       "eye_gaze",
	EventWarning:       "warning",
	EventStatusChange:  "status_change",
	EventMultipleFaces: "multiple_faces",
	EventAudioDetected: "audio_detected",
}

var eventTypeFromName = invert(eventTypeNames)

func (t EventType) String() string {
	if n, ok := eventTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *EventType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, eventTypeFromName, "event type", t)
}

// ParseEventType converts a wire name such as "head_pose" into an EventType.
func ParseEventType(s string) (EventType, error) {
	if t, ok := eventTypeFromName[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

func invert[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func unmarshalEnum[K comparable](data []byte, names map[string]K, kind string, dst *K) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := names[s]
	if !ok {
		return fmt.Errorf("unknown %s %q", kind, s)
	}
	*dst = v
	return nil
}
