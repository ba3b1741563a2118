package proctor

// MaxScore is the ceiling of the suspicion score.
const MaxScore = 100

// DefaultWarningThreshold is the warning count at which a session becomes
// Suspicious.
const DefaultWarningThreshold = 3

// Signal names the input channel a rule reacts to.
type Signal int

const (
	SignalFacePresence Signal = iota
	SignalFaceCount
	SignalHeadPose
	SignalEyeGaze
	SignalWarning
	SignalAudio
)

// Transition names the edge of a signal a rule reacts to.
type Transition int

const (
	// TransitionLost: face presence went from detected to not detected.
	TransitionLost Transition = iota
	// TransitionMultiple: face count changed to a value above one.
	TransitionMultiple
	// TransitionAway: the signal left its center/nominal value.
	TransitionAway
	// TransitionSustained: a debounced condition held for its full duration.
	TransitionSustained
	// TransitionReturned: the signal came back to its center value.
	TransitionReturned
	// TransitionManual: an explicit IncrementWarning call.
	TransitionManual
)

// Rule keys the policy table.
type Rule struct {
	Signal     Signal
	Transition Transition
}

// StatusRule is how a rule moves the session status.
type StatusRule int

const (
	StatusKeep StatusRule = iota
	// StatusForceSuspicious sets Suspicious regardless of warning count.
	StatusForceSuspicious
	// StatusEscalate sets Suspicious at or above the warning threshold,
	// Warning below it.
	StatusEscalate
	// StatusRecover sets Normal while the warning count is below threshold.
	StatusRecover
)

// EventSpec describes the log entry a rule emits. Descriptions are built by
// the caller because they depend on the signal value.
type EventSpec struct {
	Type     EventType
	Severity Status
}

// Effect is the outcome of a rule.
type Effect struct {
	ScoreDelta   int
	WarningDelta int
	Status       StatusRule
	Event        *EventSpec
}

// Policy is the scoring table plus the warning threshold it escalates on.
type Policy struct {
	WarningThreshold int
	Rules            map[Rule]Effect
}

// Scores overrides the score deltas of the default table.
type Scores struct {
	MultipleFaces     int
	LookAway          int
	SustainedLookAway int
	GazeAway          int
	Warning           int
}

// DefaultScores are the deltas of the reference scoring policy.
func DefaultScores() Scores {
	return Scores{
		MultipleFaces:     25,
		LookAway:          5,
		SustainedLookAway: 15,
		GazeAway:          2,
		Warning:           15,
	}
}

// DefaultPolicy returns the reference policy.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultScores(), DefaultWarningThreshold)
}

// NewPolicy builds the rule table from score deltas and a threshold.
func NewPolicy(sc Scores, threshold int) Policy {
	if threshold <= 0 {
		threshold = DefaultWarningThreshold
	}
	return Policy{
		WarningThreshold: threshold,
		Rules: map[Rule]Effect{
			{SignalFacePresence, TransitionLost}: {
				Event: &EventSpec{Type: EventFaceLost, Severity: Warning},
			},
			{SignalFaceCount, TransitionMultiple}: {
				ScoreDelta:   sc.MultipleFaces,
				WarningDelta: 1,
				Status:       StatusForceSuspicious,
				Event:        &EventSpec{Type: EventMultipleFaces, Severity: Suspicious},
			},
			{SignalHeadPose, TransitionAway}: {
				ScoreDelta: sc.LookAway,
			},
			{SignalHeadPose, TransitionSustained}: {
				ScoreDelta:   sc.SustainedLookAway,
				WarningDelta: 1,
				Status:       StatusEscalate,
				Event:        &EventSpec{Type: EventHeadPose, Severity: Warning},
			},
			{SignalHeadPose, TransitionReturned}: {
				Status: StatusRecover,
			},
			{SignalEyeGaze, TransitionAway}: {
				ScoreDelta: sc.GazeAway,
			},
			{SignalWarning, TransitionManual}: {
				ScoreDelta:   sc.Warning,
				WarningDelta: 1,
				Status:       StatusEscalate,
			},
			{SignalAudio, TransitionSustained}: {
				Event: &EventSpec{Type: EventAudioDetected, Severity: Warning},
			},
		},
	}
}

// Lookup returns the effect for r. Unknown rules have no effect.
func (p Policy) Lookup(signal Signal, transition Transition) (Effect, bool) {
	e, ok := p.Rules[Rule{signal, transition}]
	return e, ok
}

// apply folds an effect's counters and status into st. Event emission is
// left to the caller.
func (p Policy) apply(st *State, e Effect) {
	st.SuspicionScore = clampScore(st.SuspicionScore + e.ScoreDelta)
	if e.WarningDelta > 0 {
		st.WarningCount += e.WarningDelta
	}

	switch e.Status {
	case StatusForceSuspicious:
		st.Status = Suspicious
	case StatusEscalate:
		if st.WarningCount >= p.WarningThreshold {
			st.Status = Suspicious
		} else {
			st.Status = Warning
		}
	case StatusRecover:
		if st.WarningCount < p.WarningThreshold {
			st.Status = Normal
		}
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
