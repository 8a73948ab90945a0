// Package capture owns the live side of the engine: the stability
// state machine that decides when a usable sample exists, the session loop
// that drives it from a camera, and the lease that keeps one session per
// device.
package capture

import (
	"time"
)

// State is the auto-capture state for one session cycle.
type State string

const (
	// StateSearching: no qualifying face this frame.
	StateSearching State = "searching"
	// StateDetecting: a face is present but not yet stable or good enough.
	StateDetecting State = "detecting"
	// StateStable: enough consecutive qualifying frames; countdown started.
	StateStable State = "stable"
	// StateCountdown: countdown running toward auto-capture.
	StateCountdown State = "countdown"
	// StateCaptured: extraction triggered; terminal for this cycle.
	StateCaptured State = "captured"
)

// Frame is one tick's detection outcome fed into the state machine.
type Frame struct {
	HasFace bool
	Quality float64
	At      time.Time
}

// Transition is the state machine's decision for one frame.
type Transition struct {
	From    State
	To      State
	Trigger bool // extraction should run exactly once when true
}

// StateMachine implements the Searching -> Detecting -> Stable -> Countdown ->
// Captured cycle. Any state except Captured reverts to Searching the instant a
// frame has no qualifying detection, cancelling a pending countdown. It never
// emits two triggers without an intervening Searching -> Stable cycle.
//
// Not safe for concurrent use; a session owns exactly one.
type StateMachine struct {
	stabilityThreshold int
	qualityThreshold   float64
	captureDelay       time.Duration

	state              State
	consecutiveStable  int
	countdownStartedAt time.Time // zero when no countdown is pending
}

// NewStateMachine builds a machine in the Searching state.
func NewStateMachine(stabilityThreshold int, qualityThreshold float64, captureDelay time.Duration) *StateMachine {
	if stabilityThreshold < 1 {
		stabilityThreshold = 1
	}
	return &StateMachine{
		stabilityThreshold: stabilityThreshold,
		qualityThreshold:   qualityThreshold,
		captureDelay:       captureDelay,
		state:              StateSearching,
	}
}

// State returns the current state.
func (m *StateMachine) State() State { return m.state }

// Observe feeds one frame result into the machine and returns the transition.
// A frame qualifies when a face is present and its quality meets the
// threshold. Observing while Captured is a no-op until Completed is called.
func (m *StateMachine) Observe(f Frame) Transition {
	from := m.state

	if m.state == StateCaptured {
		return Transition{From: from, To: from}
	}

	qualifies := f.HasFace && f.Quality >= m.qualityThreshold
	if !qualifies {
		m.reset()
		return Transition{From: from, To: StateSearching}
	}

	m.consecutiveStable++
	if m.consecutiveStable < m.stabilityThreshold {
		m.state = StateDetecting
		return Transition{From: from, To: StateDetecting}
	}

	if m.countdownStartedAt.IsZero() {
		// Entering Stable starts the countdown.
		m.countdownStartedAt = f.At
		m.state = StateStable
		return Transition{From: from, To: StateStable}
	}

	if f.At.Sub(m.countdownStartedAt) >= m.captureDelay {
		m.state = StateCaptured
		return Transition{From: from, To: StateCaptured, Trigger: true}
	}

	m.state = StateCountdown
	return Transition{From: from, To: StateCountdown}
}

// Completed resets the machine to Searching after an extraction finishes
// (successfully or not), opening the next capture cycle.
func (m *StateMachine) Completed() {
	m.reset()
}

// ConsumeCycle marks the current cycle as spent without an automatic trigger.
// Used by the manual capture path so a manual capture and the countdown
// cannot both fire in one cycle.
func (m *StateMachine) ConsumeCycle() {
	m.reset()
}

func (m *StateMachine) reset() {
	m.state = StateSearching
	m.consecutiveStable = 0
	m.countdownStartedAt = time.Time{}
}
