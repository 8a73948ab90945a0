//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"faceledger/internal/face/models"
	"faceledger/internal/face/store"
	"faceledger/pkg/platform/sentinel"
	"faceledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "face_enrollments"))
}

func testEmbedding(axis int) models.Embedding {
	vec := make(models.Embedding, models.Dimension)
	vec[axis] = 1
	return vec
}

func testRecord(ownerID string, consent bool, axis int) models.EnrollmentRecord {
	return models.EnrollmentRecord{
		OwnerID:             ownerID,
		OwnerName:           "Owner " + ownerID,
		Embedding:           testEmbedding(axis),
		QualityScore:        0.82,
		DetectionConfidence: 0.97,
		ConsentGiven:        consent,
	}
}

func (s *PostgresStoreSuite) TestPutAndGetRoundTrip() {
	ctx := context.Background()

	id, err := s.store.Put(ctx, testRecord("owner-1", true, 5))
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, id)

	got, err := s.store.GetByOwner(ctx, "owner-1")
	s.Require().NoError(err)
	s.Equal(id, got.ID)
	s.Len(got.Embedding, models.Dimension)
	s.InDelta(1.0, got.Embedding[5], 1e-12)
	s.True(got.ConsentGiven)
	s.InDelta(0.82, got.QualityScore, 1e-12)
}

func (s *PostgresStoreSuite) TestZeroVectorRejectedBeforeSQL() {
	ctx := context.Background()
	bad := testRecord("owner-bad", true, 0)
	bad.Embedding = make(models.Embedding, models.Dimension)

	_, err := s.store.Put(ctx, bad)
	s.ErrorIs(err, models.ErrInvalidEmbedding)
}

func (s *PostgresStoreSuite) TestListWithConsentOrderAndFilter() {
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i, owner := range []string{"a", "b", "c"} {
		rec := testRecord(owner, true, i)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := s.store.Put(ctx, rec)
		s.Require().NoError(err)
	}
	noConsent := testRecord("quiet", false, 7)
	_, err := s.store.Put(ctx, noConsent)
	s.Require().NoError(err)

	records, err := s.store.ListWithConsent(ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("a", records[0].OwnerID)
	s.Equal("b", records[1].OwnerID)
	s.Equal("c", records[2].OwnerID)
}

func (s *PostgresStoreSuite) TestUpdateMetadata() {
	ctx := context.Background()
	id, err := s.store.Put(ctx, testRecord("owner-1", true, 0))
	s.Require().NoError(err)

	consent := false
	retention := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	err = s.store.UpdateMetadata(ctx, id, models.EnrollmentMetadata{
		ConsentGiven:       &consent,
		RetentionExpiresAt: &retention,
	})
	s.Require().NoError(err)

	got, err := s.store.GetByOwner(ctx, "owner-1")
	s.Require().NoError(err)
	s.False(got.ConsentGiven)
	s.Require().NotNil(got.RetentionExpiresAt)
	s.True(retention.Equal(*got.RetentionExpiresAt))
	s.InDelta(0.82, got.QualityScore, 1e-12, "untouched field preserved")

	s.ErrorIs(s.store.UpdateMetadata(ctx, uuid.New(), models.EnrollmentMetadata{}), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestInTxRollsBackOnError() {
	ctx := context.Background()
	id, err := s.store.Put(ctx, testRecord("owner-1", true, 3))
	s.Require().NoError(err)

	boom := errors.New("abort replacement")
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Delete(ctx, id))
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.GetByOwner(ctx, "owner-1")
	s.Require().NoError(err, "rolled back delete must leave the record in place")
	s.Equal(id, got.ID)
}

func (s *PostgresStoreSuite) TestInTxCommitsReplacement() {
	ctx := context.Background()
	oldID, err := s.store.Put(ctx, testRecord("owner-1", true, 3))
	s.Require().NoError(err)

	var newID uuid.UUID
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, oldID); err != nil {
			return err
		}
		newID, err = s.store.Put(ctx, testRecord("owner-1", true, 9))
		return err
	})
	s.Require().NoError(err)

	got, err := s.store.GetByOwner(ctx, "owner-1")
	s.Require().NoError(err)
	s.Equal(newID, got.ID)
	s.InDelta(1.0, got.Embedding[9], 1e-12)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	id, err := s.store.Put(ctx, testRecord("erase-me", true, 0))
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(ctx, id))

	_, err = s.store.GetByOwner(ctx, "erase-me")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(ctx, id), sentinel.ErrNotFound)
}
