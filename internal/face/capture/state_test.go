package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Stability State Machine Test Suite
// =============================================================================
// Justification for unit tests: the machine's timing and reset semantics
// (instant revert on a bad frame, countdown cancellation, one trigger per
// cycle) are impossible to pin down through the HTTP surface.

type StateMachineSuite struct {
	suite.Suite
	machine *StateMachine
	now     time.Time
}

func TestStateMachineSuite(t *testing.T) {
	suite.Run(t, new(StateMachineSuite))
}

const (
	testStability = 10
	testQuality   = 0.7
	testDelay     = 3 * time.Second
)

func (s *StateMachineSuite) SetupTest() {
	s.machine = NewStateMachine(testStability, testQuality, testDelay)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

// goodFrame advances time by the tick interval and observes a qualifying
// frame.
func (s *StateMachineSuite) goodFrame() Transition {
	s.now = s.now.Add(100 * time.Millisecond)
	return s.machine.Observe(Frame{HasFace: true, Quality: 0.9, At: s.now})
}

func (s *StateMachineSuite) emptyFrame() Transition {
	s.now = s.now.Add(100 * time.Millisecond)
	return s.machine.Observe(Frame{HasFace: false, At: s.now})
}

// runToCapture feeds qualifying frames until the machine triggers, returning
// the number of triggers seen.
func (s *StateMachineSuite) runToCapture(maxFrames int) int {
	triggers := 0
	for i := 0; i < maxFrames; i++ {
		if s.goodFrame().Trigger {
			triggers++
		}
	}
	return triggers
}

func (s *StateMachineSuite) TestHappyPath() {
	s.Equal(StateSearching, s.machine.State())

	// Frames 1..9: detecting.
	for i := 0; i < testStability-1; i++ {
		tr := s.goodFrame()
		s.Equal(StateDetecting, tr.To)
		s.False(tr.Trigger)
	}

	// Frame 10: stable, countdown starts.
	tr := s.goodFrame()
	s.Equal(StateStable, tr.To)
	s.False(tr.Trigger)

	// Countdown runs until the delay elapses, then exactly one trigger.
	triggers := 0
	for i := 0; i < 40; i++ {
		tr = s.goodFrame()
		if tr.Trigger {
			triggers++
			break
		}
		s.Equal(StateCountdown, tr.To)
	}
	s.Equal(1, triggers)
	s.Equal(StateCaptured, s.machine.State())
}

func (s *StateMachineSuite) TestTenGoodFramesPlusDelayYieldsExactlyOneCapture() {
	// 10 stable frames + enough ticks to cover captureDelay at 100ms/frame.
	triggers := s.runToCapture(testStability + int(testDelay/(100*time.Millisecond)) + 5)
	s.Equal(1, triggers)
}

func (s *StateMachineSuite) TestInterruptionAtFrameNineAbortsTheCycle() {
	for i := 0; i < 9; i++ {
		s.goodFrame()
	}
	tr := s.emptyFrame()
	s.Equal(StateSearching, tr.To)

	// The aborted run must not count toward the next cycle: nine more good
	// frames still leave the machine short of stable.
	var sawTrigger bool
	for i := 0; i < 9; i++ {
		if s.goodFrame().Trigger {
			sawTrigger = true
		}
	}
	s.False(sawTrigger)
	s.Equal(StateDetecting, s.machine.State())
}

func (s *StateMachineSuite) TestCountdownCancelledByDisqualifyingFrame() {
	for i := 0; i < testStability+3; i++ {
		s.goodFrame()
	}
	s.Equal(StateCountdown, s.machine.State())

	tr := s.emptyFrame()
	s.Equal(StateSearching, tr.To)

	// A fresh full cycle is required before any trigger.
	triggers := s.runToCapture(testStability - 1)
	s.Zero(triggers)
}

func (s *StateMachineSuite) TestLowQualityFrameResetsLikeNoFace() {
	for i := 0; i < 5; i++ {
		s.goodFrame()
	}
	s.now = s.now.Add(100 * time.Millisecond)
	tr := s.machine.Observe(Frame{HasFace: true, Quality: 0.5, At: s.now})
	s.Equal(StateSearching, tr.To)
}

func (s *StateMachineSuite) TestQualityThresholdIsInclusive() {
	s.now = s.now.Add(100 * time.Millisecond)
	tr := s.machine.Observe(Frame{HasFace: true, Quality: testQuality, At: s.now})
	s.Equal(StateDetecting, tr.To)
}

func (s *StateMachineSuite) TestNoSecondTriggerWithoutNewCycle() {
	s.runToCapture(100)
	s.Equal(StateCaptured, s.machine.State())

	// Further frames while Captured do nothing.
	tr := s.goodFrame()
	s.False(tr.Trigger)
	s.Equal(StateCaptured, tr.To)

	// After completion the machine starts over and can trigger again.
	s.machine.Completed()
	s.Equal(StateSearching, s.machine.State())
	s.Equal(1, s.runToCapture(100))
}

func (s *StateMachineSuite) TestConsumeCycleSpendsTheCountdown() {
	for i := 0; i < testStability+2; i++ {
		s.goodFrame()
	}
	s.Equal(StateCountdown, s.machine.State())

	s.machine.ConsumeCycle()
	s.Equal(StateSearching, s.machine.State())

	// The countdown that was pending can no longer fire.
	tr := s.goodFrame()
	s.False(tr.Trigger)
	s.Equal(StateDetecting, tr.To)
}
