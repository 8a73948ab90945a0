//go:build integration

package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"faceledger/internal/face/capture"
	"faceledger/pkg/platform/sentinel"
	"faceledger/pkg/testutil/containers"
)

type RedisLeaseSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	leases *capture.RedisLeaseStore
}

func TestRedisLeaseSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLeaseSuite))
}

func (s *RedisLeaseSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.leases = capture.NewRedisLeaseStore(s.redis.Client)
}

func (s *RedisLeaseSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLeaseSuite) TestExclusiveAcquire() {
	ctx := context.Background()

	s.Require().NoError(s.leases.Acquire(ctx, "cam-0", "session-a", time.Minute))
	s.ErrorIs(s.leases.Acquire(ctx, "cam-0", "session-b", time.Minute), sentinel.ErrConflict)

	holder, err := s.leases.Holder(ctx, "cam-0")
	s.Require().NoError(err)
	s.Equal("session-a", holder)

	s.Require().NoError(s.leases.Acquire(ctx, "cam-1", "session-b", time.Minute),
		"a different camera is a different lease")
}

func (s *RedisLeaseSuite) TestHolderReacquireExtendsTTL() {
	ctx := context.Background()

	s.Require().NoError(s.leases.Acquire(ctx, "cam-0", "session-a", 500*time.Millisecond))
	s.Require().NoError(s.leases.Acquire(ctx, "cam-0", "session-a", time.Minute))

	time.Sleep(time.Second)
	holder, err := s.leases.Holder(ctx, "cam-0")
	s.Require().NoError(err)
	s.Equal("session-a", holder, "extended lease must survive the original TTL")
}

func (s *RedisLeaseSuite) TestExpiryFreesCamera() {
	ctx := context.Background()

	s.Require().NoError(s.leases.Acquire(ctx, "cam-0", "session-a", 200*time.Millisecond))
	s.Require().Eventually(func() bool {
		return s.leases.Acquire(ctx, "cam-0", "session-b", time.Minute) == nil
	}, 3*time.Second, 50*time.Millisecond, "expired lease must become acquirable")
}

func (s *RedisLeaseSuite) TestReleaseOnlyByHolder() {
	ctx := context.Background()

	s.Require().NoError(s.leases.Acquire(ctx, "cam-0", "session-a", time.Minute))
	s.Require().NoError(s.leases.Release(ctx, "cam-0", "session-b"))

	holder, err := s.leases.Holder(ctx, "cam-0")
	s.Require().NoError(err)
	s.Equal("session-a", holder, "non-holder release must be a no-op")

	s.Require().NoError(s.leases.Release(ctx, "cam-0", "session-a"))
	_, err = s.leases.Holder(ctx, "cam-0")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
