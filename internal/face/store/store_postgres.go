package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"faceledger/internal/face/models"
	"faceledger/pkg/platform/sentinel"
	"faceledger/pkg/platform/tx"
)

var listDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "faceledger_embedding_list_duration_ms",
	Help:    "Latency of candidate snapshot reads in milliseconds",
	Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250},
})

// Postgres persists enrollment records in PostgreSQL. Embeddings are stored
// as float8[] so the numeric representation stays canonical end to end.
//
// Schema:
//
//	CREATE TABLE face_enrollments (
//	    id                   UUID PRIMARY KEY,
//	    owner_id             TEXT NOT NULL,
//	    owner_name           TEXT NOT NULL DEFAULT '',
//	    embedding            FLOAT8[] NOT NULL CHECK (cardinality(embedding) = 128),
//	    quality_score        DOUBLE PRECISION NOT NULL,
//	    detection_confidence DOUBLE PRECISION NOT NULL,
//	    consent_given        BOOLEAN NOT NULL,
//	    retention_expires_at TIMESTAMPTZ,
//	    created_at           TIMESTAMPTZ NOT NULL,
//	    updated_at           TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX face_enrollments_owner_idx ON face_enrollments (owner_id);
type Postgres struct {
	db    *sql.DB
	clock func() time.Time
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *Postgres) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed enrollment store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	s := &Postgres{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the context transaction when one is attached, otherwise the pool.
func (s *Postgres) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// InTx runs fn with a transaction attached to its context. Every store call
// made through that context joins the same transaction, so delete-then-put
// replacement never leaves an owner with zero enrollments visible.
func (s *Postgres) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreErr("begin transaction", err)
	}
	if err := fn(tx.WithTx(ctx, t)); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return wrapStoreErr("commit transaction", err)
	}
	return nil
}

func (s *Postgres) Put(ctx context.Context, record models.EnrollmentRecord) (uuid.UUID, error) {
	if err := record.Embedding.Validate(); err != nil {
		return uuid.Nil, err
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := s.clock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	query := `
		INSERT INTO face_enrollments
			(id, owner_id, owner_name, embedding, quality_score, detection_confidence,
			 consent_given, retention_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		record.ID, record.OwnerID, record.OwnerName,
		pq.Float64Array(record.Embedding),
		record.QualityScore, record.DetectionConfidence,
		record.ConsentGiven, record.RetentionExpiresAt,
		record.CreatedAt, now,
	)
	if err != nil {
		return uuid.Nil, wrapStoreErr("put enrollment", err)
	}
	return record.ID, nil
}

func (s *Postgres) GetByOwner(ctx context.Context, ownerID string) (models.EnrollmentRecord, error) {
	query := selectColumns + ` WHERE owner_id = $1 ORDER BY created_at LIMIT 1`
	record, err := scanRecord(s.q(ctx).QueryRowContext(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EnrollmentRecord{}, sentinel.ErrNotFound
		}
		return models.EnrollmentRecord{}, wrapStoreErr("get enrollment by owner", err)
	}
	return record, nil
}

func (s *Postgres) ListWithConsent(ctx context.Context) ([]models.EnrollmentRecord, error) {
	start := time.Now()
	defer func() {
		listDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	query := selectColumns + ` WHERE consent_given ORDER BY created_at, id`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, wrapStoreErr("list enrollments", err)
	}
	defer rows.Close()

	var out []models.EnrollmentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, wrapStoreErr("scan enrollment", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("list enrollments", err)
	}
	return out, nil
}

func (s *Postgres) UpdateMetadata(ctx context.Context, id uuid.UUID, meta models.EnrollmentMetadata) error {
	query := `
		UPDATE face_enrollments SET
			quality_score        = COALESCE($2, quality_score),
			detection_confidence = COALESCE($3, detection_confidence),
			consent_given        = COALESCE($4, consent_given),
			retention_expires_at = COALESCE($5, retention_expires_at),
			updated_at           = $6
		WHERE id = $1
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		id, meta.QualityScore, meta.DetectionConfidence, meta.ConsentGiven,
		meta.RetentionExpiresAt, s.clock(),
	)
	if err != nil {
		return wrapStoreErr("update enrollment metadata", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("update enrollment metadata", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM face_enrollments WHERE id = $1`, id)
	if err != nil {
		return wrapStoreErr("delete enrollment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("delete enrollment", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectColumns = `
	SELECT id, owner_id, owner_name, embedding, quality_score, detection_confidence,
	       consent_given, retention_expires_at, created_at, updated_at
	FROM face_enrollments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.EnrollmentRecord, error) {
	var (
		record    models.EnrollmentRecord
		embedding pq.Float64Array
		retention sql.NullTime
	)
	err := row.Scan(
		&record.ID, &record.OwnerID, &record.OwnerName, &embedding,
		&record.QualityScore, &record.DetectionConfidence,
		&record.ConsentGiven, &retention, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return models.EnrollmentRecord{}, err
	}
	record.Embedding = models.Embedding(embedding)
	if retention.Valid {
		t := retention.Time
		record.RetentionExpiresAt = &t
	}
	return record, nil
}

// wrapStoreErr marks infrastructure failures as unavailable so verification
// can fail safe instead of reporting a false non-match.
func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}
