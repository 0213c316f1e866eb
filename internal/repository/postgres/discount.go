package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/commercekit/cart-service/internal/domain"
	"github.com/commercekit/cart-service/pkg/database"
	apperrors "github.com/commercekit/cart-service/pkg/errors"
)

// DiscountSource implements repository.DiscountSource using PostgreSQL.
type DiscountSource struct {
	pool database.DBTX
}

// NewDiscountSource creates a PostgreSQL-backed discount source.
func NewDiscountSource(pool database.DBTX) *DiscountSource {
	return &DiscountSource{pool: pool}
}

// FindActiveByCode returns the unexpired discount with the given code.
func (s *DiscountSource) FindActiveByCode(ctx context.Context, code string) (*domain.Discount, error) {
	query := `
		SELECT id, title, code, amount, expires_at
		FROM discounts
		WHERE code = $1 AND (expires_at IS NULL OR expires_at >= $2)`

	return s.queryDiscount(ctx, query, code, time.Now().UTC())
}

// BestForOwner returns the highest-value group discount granted to the
// owner, or apperrors.ErrNotFound when they have none.
func (s *DiscountSource) BestForOwner(ctx context.Context, ownerID string) (*domain.Discount, error) {
	query := `
		SELECT d.id, d.title, d.code, d.amount, d.expires_at
		FROM discounts d
		JOIN member_discounts md ON md.discount_id = d.id
		WHERE md.owner_id = $1 AND (d.expires_at IS NULL OR d.expires_at >= $2)
		ORDER BY d.amount DESC
		LIMIT 1`

	return s.queryDiscount(ctx, query, ownerID, time.Now().UTC())
}

func (s *DiscountSource) queryDiscount(ctx context.Context, query string, args ...any) (*domain.Discount, error) {
	var d domain.Discount

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&d.ID,
		&d.Title,
		&d.Code,
		&d.Amount,
		&d.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan discount: %w", err)
	}

	return &d, nil
}
