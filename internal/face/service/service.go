// Package service is the engine facade: validation, consent enforcement,
// duplicate detection, and fail-safe verification on top of the store and
// matcher. Handlers and the capture pipeline call through here so every
// biometric operation is audited in one place.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"faceledger/internal/audit"
	"faceledger/internal/face/match"
	facemetrics "faceledger/internal/face/metrics"
	"faceledger/internal/face/models"
	"faceledger/internal/face/store"
	dErrors "faceledger/pkg/domain-errors"
	"faceledger/pkg/platform/sentinel"
)

// DefaultDedupThreshold flags an enrollment as a duplicate of an existing
// record at or above this similarity.
const DefaultDedupThreshold = 0.9

// Auditor is the slice of the audit publisher the service needs.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Transactor is implemented by stores that can run several operations in one
// transaction. The in-memory store does not need it; the SQL store does.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service exposes the engine's verification and enrollment API.
type Service struct {
	store   store.Store
	matcher *match.Matcher

	log     *slog.Logger
	auditor Auditor
	metrics *facemetrics.Metrics
	clock   func() time.Time
	dedup   float64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default no-op style logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAudit wires the audit publisher. Without it, operations run unaudited.
func WithAudit(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithMetrics wires the face metrics registry.
func WithMetrics(m *facemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDedupThreshold overrides the duplicate-detection similarity threshold.
func WithDedupThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 {
			s.dedup = t
		}
	}
}

// New wires the service.
func New(st store.Store, matcher *match.Matcher, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if matcher == nil {
		return nil, errors.New("matcher is required")
	}
	s := &Service{
		store:   st,
		matcher: matcher,
		log:     slog.Default(),
		clock:   time.Now,
		dedup:   DefaultDedupThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// StoreRequest carries one enrollment.
type StoreRequest struct {
	OwnerID             string
	OwnerName           string
	Embedding           models.Embedding
	QualityScore        float64
	DetectionConfidence float64
	ConsentGiven        bool
	RetentionExpiresAt  *time.Time
}

// Store validates and normalizes the embedding, enforces consent, runs a
// duplicate check against a fresh store snapshot, and persists the record.
// Re-enrolling an owner replaces their previous record; enrolling a face
// already registered to a different owner fails with CodeConflict.
func (s *Service) Store(ctx context.Context, req StoreRequest) (id uuid.UUID, err error) {
	defer func() { s.audit(ctx, audit.OpStore, req.OwnerID, id, err) }()

	if req.OwnerID == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "owner id is required")
	}
	if !req.ConsentGiven {
		return uuid.Nil, dErrors.New(dErrors.CodeForbidden, "consent is required to store biometric data")
	}

	normalized, nErr := req.Embedding.Normalized()
	if nErr != nil {
		return uuid.Nil, dErrors.Wrap(nErr, dErrors.CodeValidation, "embedding rejected")
	}

	// Fresh snapshot per check: a record stored a moment ago must count.
	candidates, lErr := s.store.ListWithConsent(ctx)
	if lErr != nil {
		s.metrics.IncrementEnrollment("store", "unavailable")
		return uuid.Nil, s.wrapStoreErr(lErr, "duplicate check failed")
	}
	if dupes := s.matcher.FindSimilar(normalized, candidates, s.dedup, req.OwnerID); len(dupes) > 0 {
		s.metrics.IncrementEnrollment("store", "duplicate")
		return uuid.Nil, dErrors.Newf(dErrors.CodeConflict,
			"embedding duplicates owner %s (similarity %.3f, confidence %s)",
			dupes[0].OwnerID, dupes[0].Similarity, dupes[0].Confidence)
	}

	now := s.clock()
	persist := func(ctx context.Context) error {
		if prev, gErr := s.store.GetByOwner(ctx, req.OwnerID); gErr == nil {
			if dErr := s.store.Delete(ctx, prev.ID); dErr != nil && !errors.Is(dErr, sentinel.ErrNotFound) {
				return s.wrapStoreErr(dErr, "replacing previous enrollment failed")
			}
		} else if !errors.Is(gErr, sentinel.ErrNotFound) {
			return s.wrapStoreErr(gErr, "owner lookup failed")
		}

		var pErr error
		id, pErr = s.store.Put(ctx, models.EnrollmentRecord{
			OwnerID:             req.OwnerID,
			OwnerName:           req.OwnerName,
			Embedding:           normalized,
			QualityScore:        req.QualityScore,
			DetectionConfidence: req.DetectionConfidence,
			ConsentGiven:        true,
			RetentionExpiresAt:  req.RetentionExpiresAt,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		return pErr
	}

	// Replacement is delete-then-put. Stores that support transactions run
	// both in one, so a crash in between cannot lose the previous record.
	var pErr error
	if txStore, ok := s.store.(Transactor); ok {
		pErr = txStore.InTx(ctx, persist)
	} else {
		pErr = persist(ctx)
	}
	if pErr != nil {
		s.metrics.IncrementEnrollment("store", "error")
		if errors.Is(pErr, models.ErrInvalidEmbedding) {
			return uuid.Nil, dErrors.Wrap(pErr, dErrors.CodeValidation, "embedding rejected at store boundary")
		}
		var de *dErrors.Error
		if errors.As(pErr, &de) {
			return uuid.Nil, pErr
		}
		return uuid.Nil, s.wrapStoreErr(pErr, "storing embedding failed")
	}

	s.metrics.IncrementEnrollment("store", "ok")
	s.log.Info("embedding stored", "owner_id", req.OwnerID, "embedding_id", id)
	return id, nil
}

// Verify scans all consented records for the query embedding. The scan is
// synchronous over a fresh snapshot. When the store cannot be read the result
// reports StoreChecked=false alongside a typed error; callers must not treat
// that as a non-match.
func (s *Service) Verify(ctx context.Context, query models.Embedding, filter models.OwnerFilter, threshold float64) (res models.VerificationResult, err error) {
	defer func() { s.audit(ctx, audit.OpVerify, filter.OwnerID, uuid.Nil, err) }()
	start := s.clock()

	if threshold <= 0 {
		return res, dErrors.New(dErrors.CodeInvalidInput, "similarity threshold must be positive")
	}
	if vErr := query.Validate(); vErr != nil {
		return res, dErrors.Wrap(vErr, dErrors.CodeValidation, "query embedding rejected")
	}

	candidates, lErr := s.store.ListWithConsent(ctx)
	if lErr != nil {
		s.metrics.IncrementVerification("unavailable")
		// Fail safe: an unreadable store is "could not check", never "no
		// match".
		return models.VerificationResult{Matched: false, StoreChecked: false},
			s.wrapStoreErr(lErr, "verification scan failed")
	}

	res = s.matcher.Verify(query, candidates, threshold, filter)
	s.metrics.ObserveVerifyLatency(s.clock().Sub(start))
	if res.Matched {
		s.metrics.IncrementVerification("matched")
	} else {
		s.metrics.IncrementVerification("no_match")
	}
	return res, nil
}

// FindSimilar returns every consented record at or above the threshold,
// excluding the given owner. Used for duplicate review ahead of enrollment.
func (s *Service) FindSimilar(ctx context.Context, query models.Embedding, threshold float64, excludeOwnerID string) (out []models.MatchResult, err error) {
	defer func() { s.audit(ctx, audit.OpFindSimilar, excludeOwnerID, uuid.Nil, err) }()

	if threshold <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "similarity threshold must be positive")
	}
	if vErr := query.Validate(); vErr != nil {
		return nil, dErrors.Wrap(vErr, dErrors.CodeValidation, "query embedding rejected")
	}

	candidates, lErr := s.store.ListWithConsent(ctx)
	if lErr != nil {
		return nil, s.wrapStoreErr(lErr, "similarity scan failed")
	}
	return s.matcher.FindSimilar(query, candidates, threshold, excludeOwnerID), nil
}

// UpdateMetadata applies the non-nil metadata fields to a stored record.
func (s *Service) UpdateMetadata(ctx context.Context, id uuid.UUID, meta models.EnrollmentMetadata) (err error) {
	defer func() { s.audit(ctx, audit.OpUpdate, "", id, err) }()

	if uErr := s.store.UpdateMetadata(ctx, id, meta); uErr != nil {
		if errors.Is(uErr, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "embedding %s not found", id)
		}
		return s.wrapStoreErr(uErr, "metadata update failed")
	}
	s.metrics.IncrementEnrollment("update", "ok")
	return nil
}

// Delete permanently removes a stored embedding (compliance erasure).
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.audit(ctx, audit.OpDelete, "", id, err) }()

	if dErr := s.store.Delete(ctx, id); dErr != nil {
		if errors.Is(dErr, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "embedding %s not found", id)
		}
		return s.wrapStoreErr(dErr, "erasure failed")
	}
	s.metrics.IncrementEnrollment("delete", "ok")
	s.log.Info("embedding erased", "embedding_id", id)
	return nil
}

// wrapStoreErr maps persistence failures onto the taxonomy and the
// unavailable code in one step.
func (s *Service) wrapStoreErr(err error, msg string) error {
	if !errors.Is(err, models.ErrStoreUnavailable) {
		err = errors.Join(models.ErrStoreUnavailable, err)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}

// audit emits exactly one event per public operation. Failures inside the
// audit path never surface to the caller.
func (s *Service) audit(ctx context.Context, op audit.Operation, ownerID string, id uuid.UUID, opErr error) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Timestamp: s.clock(),
		Operation: op,
		OwnerID:   ownerID,
		Success:   opErr == nil,
	}
	if id != uuid.Nil {
		event.EmbeddingID = id.String()
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	s.auditor.Emit(ctx, event)
}
