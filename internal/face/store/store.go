// Package store is the narrow persistence contract behind the face engine.
// The record database owns EnrollmentRecords; the engine only reads and
// writes through this adapter and never caches results across calls, so
// duplicate checks always see fresh data.
package store

import (
	"context"

	"github.com/google/uuid"

	"faceledger/internal/face/models"
)

// Store persists enrollment records. The matcher never mutates records; only
// Put, UpdateMetadata, and Delete do.
type Store interface {
	// Put persists a new record and returns its ID. The embedding must
	// already be validated and normalized; Put re-checks at the boundary and
	// rejects degenerate vectors with models.ErrInvalidEmbedding.
	Put(ctx context.Context, record models.EnrollmentRecord) (uuid.UUID, error)

	// GetByOwner returns the record enrolled for an owner, or
	// sentinel.ErrNotFound.
	GetByOwner(ctx context.Context, ownerID string) (models.EnrollmentRecord, error)

	// ListWithConsent returns a fresh snapshot of every record whose owner
	// has given consent, in insertion order. Each call re-reads the store.
	ListWithConsent(ctx context.Context) ([]models.EnrollmentRecord, error)

	// UpdateMetadata applies the non-nil metadata fields to a record.
	// Embeddings themselves are immutable; re-enrollment replaces the record.
	UpdateMetadata(ctx context.Context, id uuid.UUID, meta models.EnrollmentMetadata) error

	// Delete removes a record permanently (compliance erasure).
	Delete(ctx context.Context, id uuid.UUID) error
}
