package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"faceledger/internal/face/models"
	"faceledger/pkg/platform/sentinel"
)

// InMemory is the single-process Store implementation. Insertion order is
// preserved because the matcher's tie break depends on it.
type InMemory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]models.EnrollmentRecord
	order   []uuid.UUID
	clock   func() time.Time
}

// InMemoryOption configures an InMemory store.
type InMemoryOption func(*InMemory)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemory creates an empty in-memory store.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		records: make(map[uuid.UUID]models.EnrollmentRecord),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemory) Put(_ context.Context, record models.EnrollmentRecord) (uuid.UUID, error) {
	if err := record.Embedding.Validate(); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := s.clock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Embedding = record.Embedding.Clone()

	if _, exists := s.records[record.ID]; !exists {
		s.order = append(s.order, record.ID)
	}
	s.records[record.ID] = record
	return record.ID, nil
}

func (s *InMemory) GetByOwner(_ context.Context, ownerID string) (models.EnrollmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if r := s.records[id]; r.OwnerID == ownerID {
			return cloneRecord(r), nil
		}
	}
	return models.EnrollmentRecord{}, sentinel.ErrNotFound
}

func (s *InMemory) ListWithConsent(_ context.Context) ([]models.EnrollmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.EnrollmentRecord, 0, len(s.order))
	for _, id := range s.order {
		if r := s.records[id]; r.ConsentGiven {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (s *InMemory) UpdateMetadata(_ context.Context, id uuid.UUID, meta models.EnrollmentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if meta.QualityScore != nil {
		r.QualityScore = *meta.QualityScore
	}
	if meta.DetectionConfidence != nil {
		r.DetectionConfidence = *meta.DetectionConfidence
	}
	if meta.ConsentGiven != nil {
		r.ConsentGiven = *meta.ConsentGiven
	}
	if meta.RetentionExpiresAt != nil {
		r.RetentionExpiresAt = meta.RetentionExpiresAt
	}
	r.UpdatedAt = s.clock()
	s.records[id] = r
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func cloneRecord(r models.EnrollmentRecord) models.EnrollmentRecord {
	r.Embedding = r.Embedding.Clone()
	return r
}
