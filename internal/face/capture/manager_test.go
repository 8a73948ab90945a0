package capture

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"faceledger/internal/face/detect/mocks"
	"faceledger/internal/face/extract"
	"faceledger/internal/face/models"
	"faceledger/internal/face/quality"
	"faceledger/pkg/platform/sentinel"
)

// =============================================================================
// Capture Manager Test Suite
// =============================================================================
// Justification for unit tests: the manager holds the one-session-per-camera
// rule and the cancel-and-restart behavior. Lease handling across start,
// restart, and failure paths decides whether a camera can ever get stuck.

type ManagerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	detector *mocks.MockDetector
	opener   *fakeOpener
	leases   *InMemoryLeaseStore
	manager  *Manager
	ctx      context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.detector = mocks.NewMockDetector(s.ctrl)
	s.opener = newFakeOpener()
	s.leases = NewInMemoryLeaseStore()
	s.ctx = context.Background()

	scorer := quality.NewScorer()
	extractor, err := extract.New(s.detector, scorer)
	s.Require().NoError(err)

	s.manager, err = NewManager(s.opener, s.detector, scorer, extractor, s.leases, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
}

func (s *ManagerSuite) TearDownTest() {
	s.manager.Shutdown()
	s.ctrl.Finish()
}

// fakeOpener hands out one fakeCamera per camera ID.
type fakeOpener struct {
	mu      sync.Mutex
	cameras map[string]*fakeCamera
	openErr error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{cameras: make(map[string]*fakeCamera)}
}

func (o *fakeOpener) Open(cameraID string) (Camera, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	cam, ok := o.cameras[cameraID]
	if !ok {
		cam = newFakeCamera(midGrayFrame(200, 200))
		o.cameras[cameraID] = cam
	}
	return cam, nil
}

func (o *fakeOpener) camera(cameraID string) *fakeCamera {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cameras[cameraID]
}

// expectIdleLoop lets sessions run without ever finding a face.
func (s *ManagerSuite) expectIdleLoop() {
	s.detector.EXPECT().Ready().Return(nil).AnyTimes()
	s.detector.EXPECT().Detect(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
}

func (s *ManagerSuite) TestStartAndStopCapture() {
	s.expectIdleLoop()

	handle, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.Require().NoError(err)
	s.NotEmpty(handle.SessionID)
	s.Equal("cam-0", handle.CameraID)

	holder, err := s.leases.Holder(s.ctx, "cam-0")
	s.Require().NoError(err)
	s.Equal(handle.SessionID, holder)

	s.Require().NoError(s.manager.StopCapture(handle.SessionID))

	acquired, _ := s.opener.camera("cam-0").state()
	s.False(acquired)
	_, open := <-handle.Events
	s.False(open, "event channel must close when the session stops")
	_, err = s.leases.Holder(s.ctx, "cam-0")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ManagerSuite) TestBusyCameraRestartsInsteadOfStacking() {
	s.expectIdleLoop()

	first, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.Require().NoError(err)

	second, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.Require().NoError(err)
	s.NotEqual(first.SessionID, second.SessionID)

	// The first session is gone: its channel is closed and its ID unknown.
	_, open := <-first.Events
	s.False(open)
	s.ErrorIs(s.manager.StopCapture(first.SessionID), sentinel.ErrNotFound)

	holder, err := s.leases.Holder(s.ctx, "cam-0")
	s.Require().NoError(err)
	s.Equal(second.SessionID, holder)
}

func (s *ManagerSuite) TestModelNotReadyBlocksStart() {
	s.detector.EXPECT().Ready().Return(models.ErrModelUnavailable)

	_, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.ErrorIs(err, models.ErrModelUnavailable)
	s.Nil(s.opener.camera("cam-0"))
}

func (s *ManagerSuite) TestOpenFailureDoesNotStickTheLease() {
	s.expectIdleLoop()

	s.opener.openErr = models.ErrDeviceUnavailable
	_, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.ErrorIs(err, models.ErrDeviceUnavailable)

	s.opener.openErr = nil
	handle, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.Require().NoError(err)
	s.NotEmpty(handle.SessionID)
}

func (s *ManagerSuite) TestAcquireDeniedSurfacesSynchronously() {
	s.expectIdleLoop()

	s.opener.cameras["cam-0"] = newFakeCamera(midGrayFrame(200, 200))
	s.opener.cameras["cam-0"].acquireErr = models.ErrCameraAccessDenied

	_, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.ErrorIs(err, models.ErrCameraAccessDenied)
}

func (s *ManagerSuite) TestSlowAcquireFailureSurfacesTypedError() {
	s.expectIdleLoop()

	cam := newFakeCamera(midGrayFrame(200, 200))
	cam.acquireErr = models.ErrCameraAccessDenied
	cam.acquireDelay = 100 * time.Millisecond
	s.opener.cameras["cam-0"] = cam

	// A device that takes its time before denying access must still fail the
	// start call, never hand back a handle with a dead event channel.
	_, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.ErrorIs(err, models.ErrCameraAccessDenied)

	_, err = s.leases.Holder(s.ctx, "cam-0")
	s.ErrorIs(err, sentinel.ErrNotFound, "failed acquisition must not pin the lease")
}

func (s *ManagerSuite) TestUnknownSessionOperations() {
	s.ErrorIs(s.manager.StopCapture("nope"), sentinel.ErrNotFound)

	_, err := s.manager.ManualCapture(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ManagerSuite) TestShutdownStopsEverySession() {
	s.expectIdleLoop()

	a, err := s.manager.StartCapture(s.ctx, "cam-0")
	s.Require().NoError(err)
	b, err := s.manager.StartCapture(s.ctx, "cam-1")
	s.Require().NoError(err)

	s.manager.Shutdown()

	for _, handle := range []Handle{a, b} {
		select {
		case _, open := <-handle.Events:
			s.False(open)
		case <-time.After(2 * time.Second):
			s.FailNow("session did not stop")
		}
	}
	for _, cam := range []string{"cam-0", "cam-1"} {
		acquired, _ := s.opener.camera(cam).state()
		s.False(acquired)
	}
}
