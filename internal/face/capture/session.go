package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"faceledger/internal/audit"
	"faceledger/internal/face/detect"
	"faceledger/internal/face/extract"
	"faceledger/internal/face/models"
	"faceledger/internal/face/quality"
	"faceledger/pkg/platform/sentinel"
)

// Auditor receives one event per capture attempt. Satisfied by
// *audit.Publisher; emission must never block the capture loop.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Recorder receives capture outcome metrics. Satisfied by the face module
// Metrics.
type Recorder interface {
	IncrementCapture(trigger, outcome string)
	ObserveCaptureQuality(q float64)
}

// Config tunes one capture session.
type Config struct {
	StabilityThreshold int
	QualityThreshold   float64
	CaptureDelay       time.Duration
	TickInterval       time.Duration
	EventBuffer        int
}

// EventType classifies session events.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventCaptured      EventType = "captured"
	EventCaptureFailed EventType = "capture_failed"
)

// Event is delivered on the session's event channel in frame order. The
// channel replaces callback wiring so consumers observe transitions without
// sharing mutable state with the loop.
type Event struct {
	Type    EventType                `json:"type"`
	State   State                    `json:"state"`
	Quality *models.QualityBreakdown `json:"quality,omitempty"`
	Result  *extract.Result          `json:"-"`
	Err     string                   `json:"error,omitempty"`
	At      time.Time                `json:"at"`
}

// windowBest is the best-quality detection seen in the current stable window.
type windowBest struct {
	frame   image.Image
	det     models.Detection
	quality float64
	valid   bool
}

// Session drives one camera through the detection/quality/stability pipeline.
// It exclusively owns the camera handle and its state machine for its
// lifetime. One logical loop per session; extraction is single-flight.
type Session struct {
	id        string
	camera    Camera
	detector  detect.Detector
	scorer    *quality.Scorer
	extractor *extract.Extractor
	cfg       Config
	log       *slog.Logger
	clock     func() time.Time

	auditor Auditor
	metrics Recorder

	machine *StateMachine
	events  chan Event
	// ready carries the camera acquisition result exactly once, so the
	// manager can tell a started session from one that never got the device.
	ready chan error

	// mu guards the machine, the last observed frame, and the stable-window
	// best; the manual capture path touches them concurrently with the loop.
	mu       sync.Mutex
	lastSeen windowBest
	best     windowBest

	extracting atomic.Bool
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	extractWG  sync.WaitGroup
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionClock sets the clock function for testability.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSessionAudit attaches an audit sink for capture attempts.
func WithSessionAudit(a Auditor) SessionOption {
	return func(s *Session) {
		s.auditor = a
	}
}

// WithSessionMetrics attaches capture outcome metrics.
func WithSessionMetrics(m Recorder) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// NewSession wires a session; Run starts it.
func NewSession(id string, camera Camera, detector detect.Detector, scorer *quality.Scorer, extractor *extract.Extractor, cfg Config, log *slog.Logger, opts ...SessionOption) (*Session, error) {
	if camera == nil {
		return nil, fmt.Errorf("camera is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	s := &Session{
		id:        id,
		camera:    camera,
		detector:  detector,
		scorer:    scorer,
		extractor: extractor,
		cfg:       cfg,
		log:       log.With("session_id", id),
		clock:     time.Now,
		machine:   NewStateMachine(cfg.StabilityThreshold, cfg.QualityThreshold, cfg.CaptureDelay),
		ready:     make(chan error, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.events = make(chan Event, cfg.EventBuffer)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the session's event channel. Closed when the loop exits.
func (s *Session) Events() <-chan Event { return s.events }

// Acquired delivers the camera acquisition result once Run has attempted it:
// nil when the loop owns the device, the typed error otherwise.
func (s *Session) Acquired() <-chan error { return s.ready }

// Run acquires the camera and drives the tick loop until the context is
// cancelled. The camera is released on every exit path, including panic.
func (s *Session) Run(ctx context.Context) error {
	if err := s.camera.Acquire(ctx); err != nil {
		s.ready <- err
		close(s.done)
		close(s.events)
		return fmt.Errorf("acquire camera: %w", err)
	}
	s.ready <- nil

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		// Wait for an in-flight extraction before closing the channel it
		// emits on.
		s.extractWG.Wait()
		if err := s.camera.Release(); err != nil {
			s.log.Error("camera release failed", "error", err)
		}
		close(s.events)
		close(s.done)
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop halts the loop before its next tick and blocks until the camera has
// been released. Any pending countdown dies with the state machine; no
// partial capture survives.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// tick processes one frame. Any failure inside the frame pipeline is treated
// as "no detection this frame"; it never terminates the session.
func (s *Session) tick(ctx context.Context) {
	frame, dets := s.observeFrame(ctx)

	s.mu.Lock()
	var breakdown models.QualityBreakdown
	hasFace := false
	if frame != nil && len(dets) > 0 {
		if best, ok := s.extractor.SelectBest(frame, dets); ok {
			hasFace = true
			breakdown = s.scorer.Breakdown(frame, best)
			s.lastSeen = windowBest{frame: frame, det: best, quality: breakdown.Overall, valid: true}
			if !s.best.valid || breakdown.Overall > s.best.quality {
				s.best = windowBest{frame: frame, det: best, quality: breakdown.Overall, valid: true}
			}
		}
	}
	if frame != nil && !hasFace {
		s.lastSeen = windowBest{}
	}

	now := s.clock()
	tr := s.machine.Observe(Frame{HasFace: hasFace, Quality: breakdown.Overall, At: now})
	if tr.To == StateSearching {
		s.best = windowBest{}
	}
	target := s.best
	s.mu.Unlock()

	if tr.From != tr.To {
		s.emit(Event{Type: EventStateChanged, State: tr.To, Quality: &breakdown, At: now})
	}
	if tr.Trigger && target.valid {
		s.startExtraction(ctx, target)
	}
}

// observeFrame reads and detects, converting every failure (including panics
// from a misbehaving detector) into an empty result.
func (s *Session) observeFrame(ctx context.Context) (frame image.Image, dets []models.Detection) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Warn("frame pipeline panic treated as no detection", "panic", rec)
			frame, dets = nil, nil
		}
	}()

	frame, err := s.camera.ReadFrame(ctx)
	if err != nil {
		s.log.Debug("frame read failed", "error", err)
		return nil, nil
	}
	dets, err = s.detector.Detect(ctx, frame)
	if err != nil {
		s.log.Debug("detection failed, treating as empty frame", "error", err)
		return frame, nil
	}
	return frame, dets
}

// startExtraction runs the extractor off the tick goroutine. Only one
// extraction may be in flight per session; a duplicate trigger is dropped.
func (s *Session) startExtraction(ctx context.Context, target windowBest) {
	if !s.extracting.CompareAndSwap(false, true) {
		s.log.Warn("extraction already in flight, dropping trigger")
		return
	}
	s.extractWG.Add(1)
	go func() {
		defer s.extractWG.Done()
		defer s.extracting.Store(false)

		res, err := s.extractor.Extract(ctx, target.frame, target.det)

		s.mu.Lock()
		s.machine.Completed()
		s.mu.Unlock()

		now := s.clock()
		if err != nil {
			s.log.Info("auto capture failed", "error", err)
			s.record(ctx, "auto", "error", err)
			s.emit(Event{Type: EventCaptureFailed, State: StateSearching, Err: err.Error(), At: now})
			return
		}
		s.log.Info("auto capture complete", "quality", res.Quality)
		s.record(ctx, "auto", "ok", nil)
		if s.metrics != nil {
			s.metrics.ObserveCaptureQuality(res.Quality)
		}
		s.emit(Event{Type: EventCaptured, State: StateSearching, Result: res, At: now})
	}()
}

// record emits the per-attempt audit event and outcome counter. Both sinks
// are optional and neither may block or fail the capture path.
func (s *Session) record(ctx context.Context, trigger, outcome string, cause error) {
	if s.metrics != nil {
		s.metrics.IncrementCapture(trigger, outcome)
	}
	if s.auditor == nil {
		return
	}
	ev := audit.Event{
		Timestamp: s.clock(),
		Operation: audit.OpCapture,
		SessionID: s.id,
		Success:   cause == nil,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	s.auditor.Emit(ctx, ev)
}

// ManualCapture bypasses the stability countdown and extracts from the best
// detection in the most recent frame. Fails with models.ErrNoFaceDetected
// when that frame held no face, and with sentinel.ErrConflict while an
// automatic extraction is in flight.
func (s *Session) ManualCapture(ctx context.Context) (*extract.Result, error) {
	if !s.extracting.CompareAndSwap(false, true) {
		err := fmt.Errorf("extraction in flight: %w", sentinel.ErrConflict)
		s.record(ctx, "manual", "conflict", err)
		return nil, err
	}
	defer s.extracting.Store(false)

	s.mu.Lock()
	target := s.lastSeen
	// Manual capture consumes the cycle so the pending countdown cannot fire
	// a second extraction.
	s.machine.ConsumeCycle()
	s.mu.Unlock()

	if !target.valid {
		s.record(ctx, "manual", "no_face", models.ErrNoFaceDetected)
		return nil, models.ErrNoFaceDetected
	}
	res, err := s.extractor.Extract(ctx, target.frame, target.det)
	if err != nil {
		s.record(ctx, "manual", "error", err)
		return nil, err
	}
	s.record(ctx, "manual", "ok", nil)
	if s.metrics != nil {
		s.metrics.ObserveCaptureQuality(res.Quality)
	}
	return res, nil
}

// emit delivers an event without ever blocking the capture loop. A slow
// consumer loses old events rather than stalling frame processing.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event buffer full, dropping event", "type", ev.Type)
	}
}
