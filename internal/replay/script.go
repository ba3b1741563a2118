// Package replay runs scripted signal timelines against a session on a
// simulated clock. Scripts are YAML:
//
//	session: exam-1
//	steps:
//	  - at: 0s
//	    action: start
//	  - at: 1s
//	    head_pose: left
//	  - at: 5s
//	    head_pose: center
//	end: 6s
//	expect:
//	  status: warning
//	  warning_count: 1
//	  events:
//	    head_pose: 1
package replay

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/proctorai/proctor/internal/proctor"
)

// Actions a step may perform besides setting signals.
var actions = map[string]bool{
	"start":    true,
	"stop":     true,
	"reset":    true,
	"examiner": true,
	"warning":  true,
}

type Script struct {
	Session string        `yaml:"session"`
	Steps   []Step        `yaml:"steps"`
	End     time.Duration `yaml:"end"`
	Expect  *Expectation  `yaml:"expect"`
}

// Step is applied once the simulated clock reaches At. Signal fields are
// applied in declaration order, then Action.
type Step struct {
	At            time.Duration `yaml:"at"`
	FaceDetected  *bool         `yaml:"face_detected"`
	FaceCount     *int          `yaml:"face_count"`
	HeadPose      string        `yaml:"head_pose"`
	EyeGaze       string        `yaml:"eye_gaze"`
	AudioLevel    *float64      `yaml:"audio_level"`
	AudioDetected *bool         `yaml:"audio_detected"`
	Action        string        `yaml:"action"`

	pose proctor.HeadPose
	gaze proctor.EyeGaze
}

type Expectation struct {
	Status         string         `yaml:"status"`
	WarningCount   *int           `yaml:"warning_count"`
	SuspicionScore *int           `yaml:"suspicion_score"`
	Events         map[string]int `yaml:"events"`
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) validate() error {
	if s.Session == "" {
		s.Session = "replay"
	}
	if len(s.Steps) == 0 {
		return errors.New("script has no steps")
	}

	var errs []error
	if !sort.SliceIsSorted(s.Steps, func(i, j int) bool { return s.Steps[i].At < s.Steps[j].At }) {
		errs = append(errs, errors.New("steps must be in time order"))
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.At < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative time %s", i+1, st.At))
		}
		if st.HeadPose != "" {
			p, err := proctor.ParseHeadPose(st.HeadPose)
			if err != nil {
				errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
			}
			st.pose = p
		}
		if st.EyeGaze != "" {
			g, err := proctor.ParseEyeGaze(st.EyeGaze)
			if err != nil {
				errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
			}
			st.gaze = g
		}
		if st.FaceCount != nil && *st.FaceCount < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative face_count", i+1))
		}
		if st.Action != "" && !actions[st.Action] {
			errs = append(errs, fmt.Errorf("step %d: unknown action %q", i+1, st.Action))
		}
	}
	if last := s.Steps[len(s.Steps)-1].At; s.End != 0 && s.End < last {
		errs = append(errs, fmt.Errorf("end %s is before the last step at %s", s.End, last))
	}

	if e := s.Expect; e != nil {
		if e.Status != "" {
			if _, err := proctor.ParseStatus(e.Status); err != nil {
				errs = append(errs, fmt.Errorf("expect: %w", err))
			}
		}
		for name := range e.Events {
			if _, err := proctor.ParseEventType(name); err != nil {
				errs = append(errs, fmt.Errorf("expect: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
