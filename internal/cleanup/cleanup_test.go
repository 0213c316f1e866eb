package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/cart-service/internal/domain"
	"github.com/commercekit/cart-service/pkg/logger"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByAccessKey(ctx context.Context, accessKey string) (*domain.Cart, error) {
	args := m.Called(ctx, accessKey)
	return nil, args.Error(1)
}

func (m *mockStore) FindByOwner(ctx context.Context, ownerID string) (*domain.Cart, error) {
	args := m.Called(ctx, ownerID)
	return nil, args.Error(1)
}

func (m *mockStore) SaveIfRevision(ctx context.Context, cart *domain.Cart, expectedRevision int) (bool, error) {
	args := m.Called(ctx, cart, expectedRevision)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, cartID string) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

func (m *mockStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func newTestSweeper(t *testing.T) (*Sweeper, *mockStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := new(mockStore)
	cfg := DefaultConfig()
	cfg.RetentionDays = 30

	return NewSweeper(store, rdb, logger.New("test", "error"), cfg), store, mr
}

func TestSweep_DeletesStaleCarts(t *testing.T) {
	sweeper, store, _ := newTestSweeper(t)

	store.On("DeleteStale", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		expected := time.Now().UTC().AddDate(0, 0, -30)
		return cutoff.Sub(expected).Abs() < time.Minute
	})).Return(int64(4), nil)

	require.NoError(t, sweeper.Sweep(context.Background()))
	store.AssertExpectations(t)
}

func TestSweep_GateBlocksSecondRun(t *testing.T) {
	sweeper, store, _ := newTestSweeper(t)

	store.On("DeleteStale", mock.Anything, mock.Anything).Return(int64(0), nil).Once()

	require.NoError(t, sweeper.Sweep(context.Background()))
	require.NoError(t, sweeper.Sweep(context.Background()))

	store.AssertNumberOfCalls(t, "DeleteStale", 1)
}

func TestSweep_GateExpiryAllowsNextRun(t *testing.T) {
	sweeper, store, mr := newTestSweeper(t)

	store.On("DeleteStale", mock.Anything, mock.Anything).Return(int64(0), nil)

	require.NoError(t, sweeper.Sweep(context.Background()))
	mr.FastForward(25 * time.Hour)
	require.NoError(t, sweeper.Sweep(context.Background()))

	store.AssertNumberOfCalls(t, "DeleteStale", 2)
}

func TestSweep_StoreErrorPropagates(t *testing.T) {
	sweeper, store, _ := newTestSweeper(t)

	store.On("DeleteStale", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	err := sweeper.Sweep(context.Background())
	assert.ErrorContains(t, err, "delete stale carts")
}

func TestSweep_RedisDownFails(t *testing.T) {
	sweeper, store, mr := newTestSweeper(t)
	mr.Close()

	err := sweeper.Sweep(context.Background())
	assert.ErrorContains(t, err, "acquire cleanup gate")
	store.AssertNotCalled(t, "DeleteStale", mock.Anything, mock.Anything)
}
