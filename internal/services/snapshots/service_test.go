package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	cachemocks "github.com/BearBump/DelayBoard/internal/cache/mocks"
	"github.com/BearBump/DelayBoard/internal/cache/rediscache"
	"github.com/BearBump/DelayBoard/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ServiceSuite struct {
	suite.Suite

	cache *cachemocks.MockBytesCache
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.cache, 10*time.Minute)
}

func (s *ServiceSuite) TestGet_Hit() {
	snap := models.NewSnapshot("id-1", "acc", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	b, _ := json.Marshal(snap)
	s.cache.On("Get", mock.Anything, "snapshot:acc:latest").Return(b, true, nil).Once()

	got, err := s.svc.Get(context.Background(), "acc")
	s.Require().NoError(err)
	s.Equal("id-1", got.ID)
	s.Equal(0, got.Counts["overdue"])
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGet_Miss() {
	s.cache.On("Get", mock.Anything, "snapshot:acc:latest").Return(nil, false, nil).Once()

	_, err := s.svc.Get(context.Background(), "acc")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ServiceSuite) TestGet_CacheError() {
	s.cache.On("Get", mock.Anything, "snapshot:acc:latest").Return(nil, false, errors.New("down")).Once()

	_, err := s.svc.Get(context.Background(), "acc")
	s.Require().Error(err)
	s.Contains(err.Error(), "snapshot cache get")
}

func (s *ServiceSuite) TestGet_RequiresAccount() {
	_, err := s.svc.Get(context.Background(), "")
	s.Require().Error(err)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestPut_InvalidatesThenSets() {
	snap := models.NewSnapshot("id-2", "acc", time.Now())
	var order []string
	s.cache.On("Delete", mock.Anything, "snapshot:acc:latest").
		Run(func(mock.Arguments) { order = append(order, "delete") }).
		Return(nil).Once()
	s.cache.On("Set", mock.Anything, "snapshot:acc:latest", mock.Anything, 10*time.Minute).
		Run(func(mock.Arguments) { order = append(order, "set") }).
		Return(nil).Once()

	s.Require().NoError(s.svc.Put(context.Background(), snap))
	s.Equal([]string{"delete", "set"}, order)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestPut_DeleteErrorStops() {
	s.cache.On("Delete", mock.Anything, mock.Anything).Return(errors.New("down")).Once()

	err := s.svc.Put(context.Background(), models.NewSnapshot("x", "acc", time.Now()))
	s.Require().Error(err)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestPut_RequiresAccount() {
	s.Require().Error(s.svc.Put(context.Background(), nil))
	s.Require().Error(s.svc.Put(context.Background(), &models.Snapshot{}))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestService_MemoryRoundTrip(t *testing.T) {
	svc := New(nil, 0)
	ctx := context.Background()

	_, err := svc.Get(ctx, "acc")
	require.ErrorIs(t, err, ErrNotFound)

	snap := models.NewSnapshot("id-3", "acc", time.Now())
	snap.Orders = append(snap.Orders, &models.Order{InternalID: "1_A", Delay: models.Delay{Bucket: models.BucketOverdue}})
	require.NoError(t, svc.Put(ctx, snap))

	got, err := svc.Get(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, got.Overdue(), 1)
}

func TestService_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	svc := New(rediscache.New(mr.Addr()).WithPrefix("session:"), time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Put(ctx, models.NewSnapshot("id-4", "acc", time.Now())))
	require.True(t, mr.Exists("session:snapshot:acc:latest"))

	require.NoError(t, svc.Invalidate(ctx, "acc"))
	_, err := svc.Get(ctx, "acc")
	require.ErrorIs(t, err, ErrNotFound)
}
