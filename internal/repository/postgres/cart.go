package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/commercekit/cart-service/internal/domain"
	"github.com/commercekit/cart-service/pkg/database"
	apperrors "github.com/commercekit/cart-service/pkg/errors"
)

// CartStore implements repository.CartStore using PostgreSQL.
type CartStore struct {
	pool database.DBTX
}

// NewCartStore creates a PostgreSQL-backed cart store.
func NewCartStore(pool database.DBTX) *CartStore {
	return &CartStore{pool: pool}
}

// Single query fetching cart and items: LEFT JOIN + JSONB_AGG avoids the N+1
// of loading items separately, and the correlated subquery folds each item's
// customisations into its JSON object.
const cartSelect = `
	SELECT
		c.id, c.access_key, COALESCE(c.owner_id, ''),
		COALESCE(c.discount_id, ''), COALESCE(c.discount_code, ''),
		COALESCE(c.postage_id, ''), c.delivery_type, c.revision,
		c.created_at, c.updated_at,
		COALESCE(
			JSONB_AGG(
				JSONB_BUILD_OBJECT(
					'id', ci.id,
					'cart_id', ci.cart_id,
					'key', ci.item_key,
					'title', ci.title,
					'stock_id', ci.stock_id,
					'quantity', ci.quantity,
					'unit_price', ci.unit_price,
					'tax_rate', ci.tax_rate,
					'weight', ci.weight,
					'deliverable', ci.deliverable,
					'locked', ci.locked,
					'stocked', ci.stocked,
					'customisations', (
						SELECT COALESCE(
							JSONB_AGG(
								JSONB_BUILD_OBJECT('title', ic.title, 'value', ic.value, 'price', ic.price)
								ORDER BY ic.title, ic.value
							),
							'[]'::jsonb
						)
						FROM item_customisations ic
						WHERE ic.item_id = ci.id
					)
				) ORDER BY ci.created_at, ci.id
			) FILTER (WHERE ci.id IS NOT NULL),
			'[]'::jsonb
		) AS items
	FROM carts c
	LEFT JOIN cart_items ci ON ci.cart_id = c.id
	%s
	GROUP BY c.id`

// FindByAccessKey retrieves a cart by its anonymous access token.
func (s *CartStore) FindByAccessKey(ctx context.Context, accessKey string) (*domain.Cart, error) {
	query := fmt.Sprintf(cartSelect, "WHERE c.access_key = $1")
	return s.queryCart(ctx, query, accessKey)
}

// FindByOwner retrieves the cart belonging to the given account.
func (s *CartStore) FindByOwner(ctx context.Context, ownerID string) (*domain.Cart, error) {
	query := fmt.Sprintf(cartSelect, "WHERE c.owner_id = $1")
	return s.queryCart(ctx, query, ownerID)
}

func (s *CartStore) queryCart(ctx context.Context, query string, arg any) (*domain.Cart, error) {
	var (
		c         domain.Cart
		itemsJSON []byte
	)

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.AccessKey,
		&c.OwnerID,
		&c.DiscountID,
		&c.DiscountCode,
		&c.PostageID,
		&c.DeliveryType,
		&c.Revision,
		&c.CreatedAt,
		&c.UpdatedAt,
		&itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan cart: %w", err)
	}

	if len(itemsJSON) > 0 && string(itemsJSON) != "null" && string(itemsJSON) != "[]" {
		if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
			return nil, fmt.Errorf("unmarshal cart items: %w", err)
		}
	} else {
		c.Items = []domain.LineItem{}
	}

	return &c, nil
}

// SaveIfRevision writes the cart and its items atomically, guarded by an
// optimistic revision check. expectedRevision 0 inserts a new cart. A false
// return with nil error means another writer got there first.
func (s *CartStore) SaveIfRevision(ctx context.Context, cart *domain.Cart, expectedRevision int) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	newRevision := expectedRevision + 1

	if expectedRevision == 0 {
		insertQuery := `
			INSERT INTO carts (id, access_key, owner_id, discount_id, discount_code, postage_id, delivery_type, revision, created_at, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING`

		ct, err := tx.Exec(ctx, insertQuery,
			cart.ID,
			cart.AccessKey,
			cart.OwnerID,
			cart.DiscountID,
			cart.DiscountCode,
			cart.PostageID,
			cart.DeliveryType,
			newRevision,
			now,
			now,
		)
		if err != nil {
			return false, fmt.Errorf("insert cart: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return false, nil
		}
	} else {
		updateQuery := `
			UPDATE carts
			SET owner_id = NULLIF($1, ''), discount_id = NULLIF($2, ''), discount_code = NULLIF($3, ''),
				postage_id = NULLIF($4, ''), delivery_type = $5, revision = $6, updated_at = $7
			WHERE id = $8 AND revision = $9`

		ct, err := tx.Exec(ctx, updateQuery,
			cart.OwnerID,
			cart.DiscountID,
			cart.DiscountCode,
			cart.PostageID,
			cart.DeliveryType,
			newRevision,
			now,
			cart.ID,
			expectedRevision,
		)
		if err != nil {
			return false, fmt.Errorf("update cart: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return false, nil
		}

		// Replace the item set wholesale; customisation rows go with their
		// items via the FK cascade.
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
			return false, fmt.Errorf("clear cart items: %w", err)
		}
	}

	itemQuery := `
		INSERT INTO cart_items (id, cart_id, item_key, title, stock_id, quantity, unit_price, tax_rate, weight, deliverable, locked, stocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	custQuery := `
		INSERT INTO item_customisations (item_id, title, value, price)
		VALUES ($1, $2, $3, $4)`

	for i := range cart.Items {
		item := &cart.Items[i]
		if _, err := tx.Exec(ctx, itemQuery,
			item.ID,
			cart.ID,
			item.Key,
			item.Title,
			item.StockID,
			item.Quantity,
			item.UnitPrice,
			item.TaxRate,
			item.Weight,
			item.Deliverable,
			item.Locked,
			item.Stocked,
			now,
		); err != nil {
			return false, fmt.Errorf("insert cart item: %w", err)
		}

		for _, cust := range item.Customisations {
			if _, err := tx.Exec(ctx, custQuery, item.ID, cust.Title, cust.Value, cust.Price); err != nil {
				return false, fmt.Errorf("insert item customisation: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	cart.Revision = newRevision
	cart.UpdatedAt = now
	return true, nil
}

// Delete removes a cart; items and customisations cascade.
func (s *CartStore) Delete(ctx context.Context, cartID string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("cart", cartID)
	}
	return nil
}

// DeleteStale removes anonymous carts whose last update predates cutoff.
func (s *CartStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM carts WHERE owner_id IS NULL AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale carts: %w", err)
	}
	return ct.RowsAffected(), nil
}
