package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"faceledger/internal/face/detect"
	"faceledger/internal/face/extract"
	"faceledger/internal/face/quality"
	"faceledger/pkg/platform/sentinel"
)

// leaseTTL bounds how long a dead process can pin a camera. Sessions renew
// implicitly by restarting; a crashed instance's lease simply expires.
const leaseTTL = 5 * time.Minute

// CameraOpener creates the device handle for a camera ID. Supplied by the
// host application, which knows what hardware (or simulation) backs each ID.
type CameraOpener interface {
	Open(cameraID string) (Camera, error)
}

// CameraOpenerFunc adapts a function to the CameraOpener interface.
type CameraOpenerFunc func(cameraID string) (Camera, error)

func (f CameraOpenerFunc) Open(cameraID string) (Camera, error) { return f(cameraID) }

// Handle identifies one running capture session.
type Handle struct {
	SessionID string
	CameraID  string
	Events    <-chan Event
}

type running struct {
	session  *Session
	cameraID string
}

// Manager enforces the one-session-per-camera rule. Starting a capture on a
// camera that already has an active session cancels the old session and
// starts a fresh one instead of stacking loops.
type Manager struct {
	opener   CameraOpener
	detector detect.Detector
	scorer   *quality.Scorer
	extract  *extract.Extractor
	leases   LeaseStore
	cfg      Config
	log      *slog.Logger
	auditor  Auditor
	metrics  Recorder

	mu        sync.Mutex
	byCamera  map[string]*running
	bySession map[string]*running
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerAudit attaches an audit sink passed to every session.
func WithManagerAudit(a Auditor) ManagerOption {
	return func(m *Manager) {
		m.auditor = a
	}
}

// WithManagerMetrics attaches capture metrics passed to every session.
func WithManagerMetrics(r Recorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = r
	}
}

// NewManager wires a session manager.
func NewManager(opener CameraOpener, detector detect.Detector, scorer *quality.Scorer, extractor *extract.Extractor, leases LeaseStore, cfg Config, log *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if opener == nil {
		return nil, fmt.Errorf("camera opener is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if leases == nil {
		leases = NewInMemoryLeaseStore()
	}
	m := &Manager{
		opener:    opener,
		detector:  detector,
		scorer:    scorer,
		extract:   extractor,
		leases:    leases,
		cfg:       cfg,
		log:       log,
		byCamera:  make(map[string]*running),
		bySession: make(map[string]*running),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// StartCapture starts a session on the given camera. The descriptor
// capability must be ready; a session never starts against a model that
// would force fabricated embeddings.
func (m *Manager) StartCapture(ctx context.Context, cameraID string) (Handle, error) {
	if err := m.detector.Ready(); err != nil {
		return Handle{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Cancel-and-restart rather than allowing duplicate loops per camera.
	if prev, ok := m.byCamera[cameraID]; ok {
		m.log.Info("restarting capture on busy camera", "camera_id", cameraID, "old_session_id", prev.session.ID())
		m.stopLocked(prev)
	}

	sessionID := uuid.NewString()
	if err := m.leases.Acquire(ctx, cameraID, sessionID, leaseTTL); err != nil {
		return Handle{}, fmt.Errorf("camera %s is leased elsewhere: %w", cameraID, err)
	}

	camera, err := m.opener.Open(cameraID)
	if err != nil {
		_ = m.leases.Release(ctx, cameraID, sessionID)
		return Handle{}, err
	}

	session, err := NewSession(sessionID, camera, m.detector, m.scorer, m.extract, m.cfg, m.log,
		WithSessionAudit(m.auditor), WithSessionMetrics(m.metrics))
	if err != nil {
		_ = m.leases.Release(ctx, cameraID, sessionID)
		return Handle{}, err
	}

	r := &running{session: session, cameraID: cameraID}
	m.byCamera[cameraID] = r
	m.bySession[sessionID] = r

	go func() {
		err := session.Run(context.WithoutCancel(ctx))
		m.mu.Lock()
		if cur, ok := m.byCamera[cameraID]; ok && cur == r {
			delete(m.byCamera, cameraID)
		}
		delete(m.bySession, sessionID)
		m.mu.Unlock()
		_ = m.leases.Release(context.Background(), cameraID, sessionID)
		if err != nil {
			m.log.Error("capture session ended with error", "session_id", sessionID, "error", err)
		}
	}()

	// Surface acquisition failures (access denied, device missing)
	// synchronously so the caller gets a typed error, not a dead handle.
	// Clean up here rather than waiting on the loop goroutine, which cannot
	// take m.mu until this call returns.
	if err := <-session.Acquired(); err != nil {
		delete(m.byCamera, cameraID)
		delete(m.bySession, sessionID)
		_ = m.leases.Release(ctx, cameraID, sessionID)
		return Handle{}, fmt.Errorf("acquire camera: %w", err)
	}

	return Handle{SessionID: sessionID, CameraID: cameraID, Events: session.Events()}, nil
}

// StopCapture stops the session and waits for the device to be released.
func (m *Manager) StopCapture(sessionID string) error {
	m.mu.Lock()
	r, ok := m.bySession[sessionID]
	if !ok {
		m.mu.Unlock()
		return sentinel.ErrNotFound
	}
	m.stopLocked(r)
	m.mu.Unlock()
	return nil
}

// ManualCapture triggers extraction on the session's current frame.
func (m *Manager) ManualCapture(ctx context.Context, sessionID string) (*extract.Result, error) {
	m.mu.Lock()
	r, ok := m.bySession[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.session.ManualCapture(ctx)
}

// Shutdown stops every active session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*running, 0, len(m.bySession))
	for _, r := range m.bySession {
		sessions = append(sessions, r)
	}
	m.mu.Unlock()

	for _, r := range sessions {
		r.session.Stop()
	}
}

// stopLocked removes the session's map entries and stops it. m.mu must be
// released around Session.Stop: the loop goroutine's cleanup takes m.mu, so
// waiting on it with the lock held would deadlock.
func (m *Manager) stopLocked(r *running) {
	delete(m.byCamera, r.cameraID)
	delete(m.bySession, r.session.ID())
	m.mu.Unlock()
	r.session.Stop()
	// The loop goroutine also releases the lease, but only after its Run call
	// unwinds. Release here as well (release is holder-scoped, so doubling up
	// is harmless) so an immediate restart on this camera cannot lose the
	// lease race.
	_ = m.leases.Release(context.Background(), r.cameraID, r.session.ID())
	m.mu.Lock()
}
