package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/cart-service/pkg/database"
	apperrors "github.com/commercekit/cart-service/pkg/errors"
)

func newTestDiscountSource(t *testing.T) (*DiscountSource, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewDiscountSource(mock), mock
}

func TestDiscountSource_FindActiveByCode(t *testing.T) {
	src, mock := newTestDiscountSource(t)
	defer mock.ExpectationsWereMet()

	expires := time.Now().UTC().Add(24 * time.Hour)
	rows := pgxmock.NewRows([]string{"id", "title", "code", "amount", "expires_at"}).
		AddRow("disc-1", "Summer Sale", "SUMMER10", int64(1000), &expires)

	mock.ExpectQuery("SELECT(.|\n)*FROM discounts").
		WithArgs("SUMMER10", pgxmock.AnyArg()).
		WillReturnRows(rows)

	d, err := src.FindActiveByCode(context.Background(), "SUMMER10")
	require.NoError(t, err)
	assert.Equal(t, "SUMMER10", d.Code)
	assert.Equal(t, int64(1000), d.Amount)
	require.NotNil(t, d.ExpiresAt)
}

func TestDiscountSource_FindActiveByCode_Unknown(t *testing.T) {
	src, mock := newTestDiscountSource(t)
	defer mock.ExpectationsWereMet()

	mock.ExpectQuery("SELECT(.|\n)*FROM discounts").
		WithArgs("NOPE", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := src.FindActiveByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDiscountSource_BestForOwner(t *testing.T) {
	src, mock := newTestDiscountSource(t)
	defer mock.ExpectationsWereMet()

	rows := pgxmock.NewRows([]string{"id", "title", "code", "amount", "expires_at"}).
		AddRow("disc-2", "Loyalty", "LOYAL20", int64(2000), (*time.Time)(nil))

	mock.ExpectQuery("SELECT(.|\n)*JOIN member_discounts").
		WithArgs("user-1", pgxmock.AnyArg()).
		WillReturnRows(rows)

	d, err := src.BestForOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "LOYAL20", d.Code)
	assert.Nil(t, d.ExpiresAt)
}

func TestDiscountSource_BestForOwner_None(t *testing.T) {
	src, mock := newTestDiscountSource(t)
	defer mock.ExpectationsWereMet()

	mock.ExpectQuery("SELECT(.|\n)*JOIN member_discounts").
		WithArgs("user-2", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := src.BestForOwner(context.Background(), "user-2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
