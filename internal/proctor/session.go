// Package proctor fuses perceptual signals from sensor adapters into a
// session verdict: a status, a clamped suspicion score, a warning counter and
// a bounded event log.
//
// A Session serializes every signal update behind its mutex. Deferred work
// (the look-away and audio debounce timers) re-enters the session through the
// same mutex and is dropped if the episode that armed it has ended.
package proctor

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/proctorai/proctor/internal/clock"
)

const (
	DefaultLookAwayAfter  = 3 * time.Second
	DefaultAudioThreshold = 25.0
	DefaultAudioSustain   = 1500 * time.Millisecond
)

// Options configures a Session. Zero fields take the defaults above.
type Options struct {
	Clock          clock.Clock
	Policy         Policy
	LookAwayAfter  time.Duration
	AudioThreshold float64
	AudioSustain   time.Duration
	LogCapacity    int

	// OnChange receives a snapshot after every update that changed state,
	// including timer fires. Calls for one session never overlap and arrive
	// in update order. It must not call back into the session.
	OnChange func(State)
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Policy.Rules == nil {
		o.Policy = DefaultPolicy()
	}
	if o.LookAwayAfter <= 0 {
		o.LookAwayAfter = DefaultLookAwayAfter
	}
	if o.AudioThreshold <= 0 {
		o.AudioThreshold = DefaultAudioThreshold
	}
	if o.AudioSustain <= 0 {
		o.AudioSustain = DefaultAudioSustain
	}
	if o.LogCapacity <= 0 {
		o.LogCapacity = DefaultLogCapacity
	}
	return o
}

// Session is the state machine for one monitored exam session.
type Session struct {
	id   string
	opts Options

	// notifyMu is taken before mu and held until OnChange returns, so
	// listeners see updates in the order they were applied.
	notifyMu sync.Mutex

	mu       sync.Mutex
	state    State
	log      *EventLog
	lookAway *Debouncer
	audio    *Debouncer
	closed   bool

	// Episode counters identify the timer callback that is allowed to act.
	lookEpisode  uint64
	audioEpisode uint64
}

// NewSession returns a session at rest.
func NewSession(id string, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		id:       id,
		opts:     opts,
		state:    initialState(id),
		log:      NewEventLog(opts.LogCapacity, opts.Clock),
		lookAway: NewDebouncer(opts.Clock),
		audio:    NewDebouncer(opts.Clock),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start marks monitoring as active and logs it.
func (s *Session) Start() State {
	return s.update(func() bool {
		if s.state.Active {
			return false
		}
		s.state.Active = true
		s.log.Append(EventStatusChange, "Proctoring session started", Normal)
		return true
	})
}

// Stop tears monitoring down: pending timers are cancelled and open
// look-away and audio episodes are abandoned. Scores and the log are kept.
func (s *Session) Stop() State {
	return s.update(func() bool {
		if !s.state.Active {
			return false
		}
		s.teardownLocked()
		s.state.Active = false
		s.log.Append(EventStatusChange, "Proctoring session ended", Normal)
		return true
	})
}

// SetFaceDetected records face presence. Losing the face is logged but does
// not by itself change the score or status.
func (s *Session) SetFaceDetected(detected bool) State {
	return s.update(func() bool {
		if s.state.FaceDetected == detected {
			return false
		}
		s.state.FaceDetected = detected
		if !detected {
			s.applyLocked(SignalFacePresence, TransitionLost,
				"Face not detected - candidate may have left the frame")
		}
		return true
	})
}

// SetFaceCount records the number of faces in frame. More than one face
// forces the session Suspicious.
func (s *Session) SetFaceCount(count int) State {
	if count < 0 {
		count = 0
	}
	return s.update(func() bool {
		if s.state.FaceCount == count {
			return false
		}
		s.state.FaceCount = count
		if count > 1 {
			s.applyLocked(SignalFaceCount, TransitionMultiple,
				fmt.Sprintf("%d faces detected - possible assistance", count))
		}
		return true
	})
}

// SetHeadPose records head orientation. Leaving center starts a look-away
// episode and arms the debounce timer once per episode; returning to center
// ends it.
func (s *Session) SetHeadPose(pose HeadPose) State {
	return s.update(func() bool {
		if s.state.HeadPose == pose {
			return false
		}
		s.state.HeadPose = pose

		if pose == PoseCenter {
			s.lookAway.Cancel()
			s.lookEpisode++
			s.state.LookAwayStartedAt = nil
			s.applyLocked(SignalHeadPose, TransitionReturned, "")
			return true
		}

		if s.state.LookAwayStartedAt != nil {
			return true
		}
		now := s.opts.Clock.Now()
		s.state.LookAwayStartedAt = &now
		s.applyLocked(SignalHeadPose, TransitionAway, "")

		s.lookEpisode++
		episode := s.lookEpisode
		s.lookAway.Arm(s.opts.LookAwayAfter, func() {
			s.lookAwaySustained(episode, pose)
		})
		return true
	})
}

func (s *Session) lookAwaySustained(episode uint64, pose HeadPose) {
	s.update(func() bool {
		if episode != s.lookEpisode || s.state.LookAwayStartedAt == nil {
			return false
		}
		s.applyLocked(SignalHeadPose, TransitionSustained,
			fmt.Sprintf("Looking %s for more than %s", pose, describeDuration(s.opts.LookAwayAfter)))
		return true
	})
}

// SetEyeGaze records gaze direction. Any change to an off-center direction
// raises the score; gaze never logs or moves the status.
func (s *Session) SetEyeGaze(gaze EyeGaze) State {
	return s.update(func() bool {
		if s.state.EyeGaze == gaze {
			return false
		}
		s.state.EyeGaze = gaze
		if gaze != GazeCenter {
			s.applyLocked(SignalEyeGaze, TransitionAway, "")
		}
		return true
	})
}

// SetAudioLevel records the microphone level in [0,100]. A level above the
// threshold held for the sustain duration raises AudioDetected; a level at
// or below the threshold abandons a pending detection, and one below half
// the threshold clears it.
func (s *Session) SetAudioLevel(level float64) State {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return s.update(func() bool {
		changed := s.state.AudioLevel != level
		s.state.AudioLevel = level
		threshold := s.opts.AudioThreshold

		if level > threshold {
			if !s.state.AudioDetected && !s.audio.Pending() {
				s.audioEpisode++
				episode := s.audioEpisode
				s.audio.Arm(s.opts.AudioSustain, func() {
					s.audioSustained(episode)
				})
			}
			return changed
		}

		s.audio.Cancel()
		s.audioEpisode++
		if level < threshold*0.5 && s.state.AudioDetected {
			s.state.AudioDetected = false
			changed = true
		}
		return changed
	})
}

func (s *Session) audioSustained(episode uint64) {
	s.update(func() bool {
		if episode != s.audioEpisode {
			return false
		}
		return s.setAudioDetectedLocked(true)
	})
}

// SetAudioDetected records an audio classification made by the adapter
// itself, bypassing the level debounce.
func (s *Session) SetAudioDetected(detected bool) State {
	return s.update(func() bool {
		return s.setAudioDetectedLocked(detected)
	})
}

func (s *Session) setAudioDetectedLocked(detected bool) bool {
	if s.state.AudioDetected == detected {
		return false
	}
	s.state.AudioDetected = detected
	if detected {
		s.applyLocked(SignalAudio, TransitionSustained,
			"Background noise or talking detected (level "+strconv.Itoa(int(s.state.AudioLevel+0.5))+"%)")
	}
	return true
}

// IncrementWarning counts one warning, escalating the status to Warning or,
// at the threshold, Suspicious.
func (s *Session) IncrementWarning() State {
	return s.update(func() bool {
		s.applyLocked(SignalWarning, TransitionManual, "")
		return true
	})
}

// ToggleExaminerMode flips the presentation-only examiner flag.
func (s *Session) ToggleExaminerMode() State {
	return s.update(func() bool {
		s.state.ExaminerMode = !s.state.ExaminerMode
		return true
	})
}

// Reset cancels pending timers and returns the session to rest.
func (s *Session) Reset() State {
	return s.update(func() bool {
		s.teardownLocked()
		s.state = initialState(s.id)
		s.log.clear()
		return true
	})
}

// Close tears the session down for good. Later updates are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.closed = true
}

func (s *Session) teardownLocked() {
	s.lookAway.Cancel()
	s.audio.Cancel()
	s.lookEpisode++
	s.audioEpisode++
	s.state.LookAwayStartedAt = nil
}

// applyLocked runs a policy rule against the state and logs its event, if
// the rule has one. Caller must hold s.mu.
func (s *Session) applyLocked(signal Signal, transition Transition, description string) {
	effect, ok := s.opts.Policy.Lookup(signal, transition)
	if !ok {
		return
	}
	if effect.Event != nil {
		s.log.Append(effect.Event.Type, description, effect.Event.Severity)
	}
	s.opts.Policy.apply(&s.state, effect)
}

// update runs fn under the lock and notifies OnChange when fn reports a
// change.
func (s *Session) update(fn func() bool) State {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	changed := fn()
	snap := s.snapshotLocked()
	notify := s.opts.OnChange
	s.mu.Unlock()

	if changed && notify != nil {
		notify(snap)
	}
	return snap
}

func (s *Session) snapshotLocked() State {
	c := s.state.Clone()
	c.Events = s.log.Events()
	return c
}

// describeDuration renders d as "3 seconds" or "1.5 seconds".
func describeDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs == 1 {
		return "1 second"
	}
	return strconv.FormatFloat(secs, 'f', -1, 64) + " seconds"
}
