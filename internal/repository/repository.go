// Package repository defines the persistence contracts for carts and
// discounts. Implementations live in subpackages.
package repository

import (
	"context"
	"time"

	"github.com/commercekit/cart-service/internal/domain"
)

// CartStore persists carts and their line items.
type CartStore interface {
	// FindByAccessKey returns the cart addressed by the given anonymous
	// token. Returns apperrors.ErrNotFound when no such cart exists.
	FindByAccessKey(ctx context.Context, accessKey string) (*domain.Cart, error)

	// FindByOwner returns the single cart belonging to the given account.
	// Returns apperrors.ErrNotFound when the owner has no cart.
	FindByOwner(ctx context.Context, ownerID string) (*domain.Cart, error)

	// SaveIfRevision writes the cart, its items and customisations
	// atomically, guarded by an optimistic revision check. expectedRevision 0
	// means the cart is new and must be inserted. On success the cart's
	// Revision is bumped and the write reports true; a lost race reports
	// false with a nil error.
	SaveIfRevision(ctx context.Context, cart *domain.Cart, expectedRevision int) (bool, error)

	// Delete removes the cart and, via cascade, its items.
	Delete(ctx context.Context, cartID string) error

	// DeleteStale removes unowned carts whose last update is older than
	// cutoff, returning how many were removed. Owned carts are never touched.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// DiscountSource looks up promotional discounts. Reads only; discount
// administration belongs to another system.
type DiscountSource interface {
	// FindActiveByCode returns the unexpired discount with the given code.
	// Returns apperrors.ErrNotFound for unknown or expired codes.
	FindActiveByCode(ctx context.Context, code string) (*domain.Discount, error)

	// BestForOwner returns the highest-value discount granted to the owner
	// through group membership, or apperrors.ErrNotFound when they have none.
	BestForOwner(ctx context.Context, ownerID string) (*domain.Discount, error)
}
