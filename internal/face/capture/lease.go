package capture

import (
	"context"
	"sync"
	"time"

	"faceledger/pkg/platform/sentinel"
)

// LeaseStore enforces exclusive camera ownership: at most one session holds a
// device at a time. The in-memory implementation covers a single process; the
// Redis one extends the guarantee across instances.
type LeaseStore interface {
	// Acquire claims the camera for a session. Returns sentinel.ErrConflict
	// when another session holds it.
	Acquire(ctx context.Context, cameraID, sessionID string, ttl time.Duration) error

	// Release frees the camera if (and only if) the session holds it.
	Release(ctx context.Context, cameraID, sessionID string) error

	// Holder returns the session currently holding the camera, or
	// sentinel.ErrNotFound.
	Holder(ctx context.Context, cameraID string) (string, error)
}

type memoryLease struct {
	sessionID string
	expiresAt time.Time
}

// InMemoryLeaseStore implements LeaseStore for single-process deployments.
type InMemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	clock  func() time.Time
}

// InMemoryLeaseOption configures an InMemoryLeaseStore.
type InMemoryLeaseOption func(*InMemoryLeaseStore)

// WithLeaseClock sets the clock function for testability.
func WithLeaseClock(clock func() time.Time) InMemoryLeaseOption {
	return func(s *InMemoryLeaseStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryLeaseStore creates an empty lease store.
func NewInMemoryLeaseStore(opts ...InMemoryLeaseOption) *InMemoryLeaseStore {
	s := &InMemoryLeaseStore{leases: make(map[string]memoryLease), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryLeaseStore) Acquire(_ context.Context, cameraID, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if lease, ok := s.leases[cameraID]; ok && lease.expiresAt.After(now) && lease.sessionID != sessionID {
		return sentinel.ErrConflict
	}
	s.leases[cameraID] = memoryLease{sessionID: sessionID, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemoryLeaseStore) Release(_ context.Context, cameraID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease, ok := s.leases[cameraID]; ok && lease.sessionID == sessionID {
		delete(s.leases, cameraID)
	}
	return nil
}

func (s *InMemoryLeaseStore) Holder(_ context.Context, cameraID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, ok := s.leases[cameraID]
	if !ok || !lease.expiresAt.After(s.clock()) {
		return "", sentinel.ErrNotFound
	}
	return lease.sessionID, nil
}
