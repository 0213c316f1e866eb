package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/commercekit/cart-service/internal/domain"
	"github.com/commercekit/cart-service/internal/repository"
	"github.com/commercekit/cart-service/internal/stock"
	apperrors "github.com/commercekit/cart-service/pkg/errors"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single line item.
	MaxQuantityPerItem = 1000
	// MaxItemsPerCart is the maximum number of distinct lines allowed in a cart.
	MaxItemsPerCart = 100
)

// Identity carries the two handles a request can present: an authenticated
// account and/or an anonymous access token. The web layer implements the
// token channel over cookies.
type Identity interface {
	// OwnerID returns the authenticated account id, or "" for guests.
	OwnerID() string
	// AccessKey returns the anonymous cart token presented, or "".
	AccessKey() string
	// SetAccessKey writes the token back to the anonymous channel.
	SetAccessKey(key string)
	// ClearAccessKey removes the token from the anonymous channel.
	ClearAccessKey()
}

// EventPublisher publishes cart domain events. Failures never fail the
// operation that triggered them.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartMerged(ctx context.Context, cart *domain.Cart, sourceAccessKey string, movedKeys, droppedKeys []string) error
	PublishCartCleared(ctx context.Context, cart *domain.Cart) error
	PublishCartDeleted(ctx context.Context, cartID, accessKey string) error
}

// AddItemInput holds the parameters for adding a line to the cart.
type AddItemInput struct {
	Title          string               `json:"title" validate:"required"`
	StockID        string               `json:"stock_id" validate:"required"`
	Quantity       int                  `json:"quantity" validate:"required,gte=1"`
	UnitPrice      int64                `json:"unit_price" validate:"gte=0"`
	TaxRate        int                  `json:"tax_rate" validate:"gte=0,lte=10000"`
	Weight         int64                `json:"weight" validate:"gte=0"`
	Deliverable    bool                 `json:"deliverable"`
	Locked         bool                 `json:"locked"`
	Stocked        bool                 `json:"stocked"`
	Customisations []CustomisationInput `json:"customisations" validate:"dive"`
}

// CustomisationInput is a buyer-selected modification on an added line.
type CustomisationInput struct {
	Title string `json:"title" validate:"required"`
	Value string `json:"value" validate:"required"`
	Price int64  `json:"price"`
}

// CartResolver implements the business logic for cart identity resolution
// and mutation.
type CartResolver struct {
	store            repository.CartStore
	discounts        repository.DiscountSource
	stock            stock.Checker
	producer         EventPublisher
	logger           *slog.Logger
	checkStockLevels bool
}

// NewCartResolver creates a cart resolver. checkStockLevels forces the stock
// gate for every line, not just those flagged as stocked.
func NewCartResolver(
	store repository.CartStore,
	discounts repository.DiscountSource,
	checker stock.Checker,
	producer EventPublisher,
	logger *slog.Logger,
	checkStockLevels bool,
) *CartResolver {
	return &CartResolver{
		store:            store,
		discounts:        discounts,
		stock:            checker,
		producer:         producer,
		logger:           logger,
		checkStockLevels: checkStockLevels,
	}
}

// Resolve finds or creates the canonical cart for the presented identity.
//
// An owned cart always wins. An anonymous token cart is only usable while
// unowned: when an account also has its own cart the anonymous one is merged
// into it and deleted, and the token channel is cleared. Guests with no
// usable cart get a fresh one and a fresh token.
func (s *CartResolver) Resolve(ctx context.Context, identity Identity) (*domain.Cart, error) {
	ownerID := identity.OwnerID()

	var owned *domain.Cart
	if ownerID != "" {
		c, err := s.store.FindByOwner(ctx, ownerID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("find cart by owner: %w", err)
		}
		owned = c
	}

	var anon *domain.Cart
	if key := identity.AccessKey(); key != "" {
		c, err := s.store.FindByAccessKey(ctx, key)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("find cart by access key: %w", err)
		}
		// A token pointing at someone's claimed cart is useless to this
		// request; treat it as absent.
		if c != nil && c.HasOwner() && c.OwnerID != ownerID {
			c = nil
		}
		anon = c
	}

	switch {
	case owned != nil:
		if anon != nil && anon.ID != owned.ID {
			if err := s.merge(ctx, owned, anon); err != nil {
				return nil, err
			}
		} else if err := s.attachGroupDiscount(ctx, owned); err != nil {
			return nil, err
		}
		identity.ClearAccessKey()
		return owned, nil

	case ownerID != "" && anon != nil:
		// Account without a cart claims the anonymous one.
		anon.OwnerID = ownerID
		if err := s.attachGroupDiscountLocal(ctx, anon); err != nil {
			return nil, err
		}
		if err := s.save(ctx, anon); err != nil {
			return nil, err
		}
		identity.ClearAccessKey()

		s.logger.InfoContext(ctx, "anonymous cart claimed",
			slog.String("cart_id", anon.ID),
			slog.String("owner_id", ownerID),
		)
		return anon, nil

	case ownerID != "":
		cart := s.newCart(ownerID)
		if err := s.attachGroupDiscountLocal(ctx, cart); err != nil {
			return nil, err
		}
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
		identity.ClearAccessKey()
		return cart, nil

	case anon != nil:
		identity.SetAccessKey(anon.AccessKey)
		return anon, nil

	default:
		cart := s.newCart("")
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
		identity.SetAccessKey(cart.AccessKey)
		return cart, nil
	}
}

// merge folds the anonymous cart into the owned one. Lines whose key is
// absent from the owned cart move across with their customisations;
// overlapping keys keep the owned quantity and the anonymous copy is
// dropped. The anonymous cart is deleted afterwards.
func (s *CartResolver) merge(ctx context.Context, owned, anon *domain.Cart) error {
	var movedKeys, droppedKeys []string

	for i := range anon.Items {
		item := anon.Items[i]
		if owned.FindItemIndex(item.Key) >= 0 {
			droppedKeys = append(droppedKeys, item.Key)
			continue
		}
		item.ID = uuid.New().String()
		item.CartID = owned.ID
		owned.Items = append(owned.Items, item)
		movedKeys = append(movedKeys, item.Key)
	}

	if err := s.attachGroupDiscountLocal(ctx, owned); err != nil {
		return err
	}

	if err := s.save(ctx, owned); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, anon.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("delete merged cart: %w", err)
	}

	if err := s.producer.PublishCartMerged(ctx, owned, anon.AccessKey, movedKeys, droppedKeys); err != nil {
		s.logEventFailure(ctx, "cart.merged", owned.ID, err)
	}

	s.logger.InfoContext(ctx, "anonymous cart merged",
		slog.String("cart_id", owned.ID),
		slog.String("source_access_key", anon.AccessKey),
		slog.Int("moved", len(movedKeys)),
		slog.Int("dropped", len(droppedKeys)),
	)

	return nil
}

// AddItem adds a line to the cart. A line with the same key already in the
// cart coalesces: the add becomes a quantity update summing both amounts.
func (s *CartResolver) AddItem(ctx context.Context, cart *domain.Cart, input AddItemInput) (*domain.Cart, error) {
	if err := validateAddInput(input); err != nil {
		return nil, err
	}

	customisations := make([]domain.Customisation, len(input.Customisations))
	for i, c := range input.Customisations {
		customisations[i] = domain.Customisation{Title: c.Title, Value: c.Value, Price: c.Price}
	}

	key := domain.ItemKey(input.StockID, customisations)

	if idx := cart.FindItemIndex(key); idx >= 0 {
		return s.UpdateItem(ctx, cart, key, cart.Items[idx].Quantity+input.Quantity)
	}

	if len(cart.Items) >= MaxItemsPerCart {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d lines", MaxItemsPerCart))
	}

	if err := s.checkStock(ctx, input.StockID, input.Title, input.Stocked, input.Quantity); err != nil {
		return nil, err
	}

	cart.Items = append(cart.Items, domain.LineItem{
		ID:             uuid.New().String(),
		CartID:         cart.ID,
		Key:            key,
		Title:          input.Title,
		StockID:        input.StockID,
		Quantity:       input.Quantity,
		UnitPrice:      input.UnitPrice,
		TaxRate:        input.TaxRate,
		Weight:         input.Weight,
		Deliverable:    input.Deliverable,
		Locked:         input.Locked,
		Stocked:        input.Stocked,
		Customisations: customisations,
	})

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("cart_id", cart.ID),
		slog.String("stock_id", input.StockID),
		slog.Int("quantity", input.Quantity),
	)

	return cart, nil
}

// UpdateItem sets the absolute quantity of the line with the given key.
// Negative quantities floor to zero, and zero removes the line. Locked
// lines reject quantity changes; remove them instead.
func (s *CartResolver) UpdateItem(ctx context.Context, cart *domain.Cart, key string, quantity int) (*domain.Cart, error) {
	idx := cart.FindItemIndex(key)
	if idx < 0 {
		return nil, apperrors.NotFound("cart item", key)
	}

	item := &cart.Items[idx]
	if item.Locked {
		return nil, apperrors.ItemLocked(item.Title)
	}

	if quantity < 0 {
		quantity = 0
	}
	if quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	if quantity > 0 {
		if err := s.checkStock(ctx, item.StockID, item.Title, item.Stocked, quantity); err != nil {
			return nil, err
		}
	}

	if quantity == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		item.Quantity = quantity
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("cart_id", cart.ID),
		slog.String("key", key),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// RemoveItem removes the line with the given key. Locked lines are
// removable.
func (s *CartResolver) RemoveItem(ctx context.Context, cart *domain.Cart, key string) (*domain.Cart, error) {
	idx := cart.FindItemIndex(key)
	if idx < 0 {
		return nil, apperrors.NotFound("cart item", key)
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("cart_id", cart.ID),
		slog.String("key", key),
	)

	return cart, nil
}

// RemoveAll empties the cart's lines. Discount and postage selections
// survive.
func (s *CartResolver) RemoveAll(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	cart.Items = []domain.LineItem{}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "all items removed from cart",
		slog.String("cart_id", cart.ID),
	)

	return cart, nil
}

// Clear resets the cart to its pristine state: no lines, no discount, no
// postage. The cart row and its identity survive.
func (s *CartResolver) Clear(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	cart.Items = []domain.LineItem{}
	cart.DiscountID = ""
	cart.DiscountCode = ""
	cart.PostageID = ""

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	if err := s.producer.PublishCartCleared(ctx, cart); err != nil {
		s.logEventFailure(ctx, "cart.cleared", cart.ID, err)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("cart_id", cart.ID),
	)

	return cart, nil
}

// SetDiscount attaches the discount with the given code. Unknown or expired
// codes are a silent no-op, as is re-applying the current code. A different
// valid code replaces the attached one.
func (s *CartResolver) SetDiscount(ctx context.Context, cart *domain.Cart, code string) (*domain.Cart, error) {
	if code == "" {
		return nil, apperrors.InvalidInput("discount code is required")
	}
	if cart.DiscountCode == code {
		return cart, nil
	}

	d, err := s.discounts.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return cart, nil
		}
		return nil, fmt.Errorf("find discount: %w", err)
	}

	cart.DiscountID = d.ID
	cart.DiscountCode = d.Code

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "discount applied",
		slog.String("cart_id", cart.ID),
		slog.String("code", d.Code),
	)

	return cart, nil
}

// RemoveDiscount detaches the attached discount, leaving items and postage
// untouched. Carts without a discount are a no-op.
func (s *CartResolver) RemoveDiscount(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	if !cart.HasDiscount() {
		return cart, nil
	}

	cart.DiscountID = ""
	cart.DiscountCode = ""

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "discount removed",
		slog.String("cart_id", cart.ID),
	)

	return cart, nil
}

// SetDeliveryType switches the cart between collection and delivery.
// Changing the type discards any postage selection.
func (s *CartResolver) SetDeliveryType(ctx context.Context, cart *domain.Cart, deliveryType domain.DeliveryType) (*domain.Cart, error) {
	if deliveryType != domain.DeliveryCollect && deliveryType != domain.DeliveryDeliver {
		return nil, apperrors.InvalidInput("delivery type must be collect or deliver")
	}

	cart.DeliveryType = deliveryType
	cart.PostageID = ""

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	return cart, nil
}

// SetPostage records a postage selection. Carts with nothing to ship, or
// set to collection, cannot carry one.
func (s *CartResolver) SetPostage(ctx context.Context, cart *domain.Cart, postageID string) (*domain.Cart, error) {
	if postageID == "" {
		return nil, apperrors.InvalidInput("postage id is required")
	}
	if !cart.IsDeliverable() {
		return nil, apperrors.InvalidInput("cart has no deliverable items")
	}
	if cart.DeliveryType == domain.DeliveryCollect {
		return nil, apperrors.InvalidInput("cart is set for collection")
	}

	cart.PostageID = postageID

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, cart)

	return cart, nil
}

// Destroy deletes the cart outright and clears the anonymous channel.
func (s *CartResolver) Destroy(ctx context.Context, identity Identity, cart *domain.Cart) error {
	if err := s.store.Delete(ctx, cart.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Store(fmt.Errorf("delete cart: %w", err))
	}
	identity.ClearAccessKey()

	if err := s.producer.PublishCartDeleted(ctx, cart.ID, cart.AccessKey); err != nil {
		s.logEventFailure(ctx, "cart.deleted", cart.ID, err)
	}

	s.logger.InfoContext(ctx, "cart destroyed",
		slog.String("cart_id", cart.ID),
	)

	return nil
}

// checkStock enforces the availability gate. It applies when the line is
// flagged as stocked or the global switch forces checks for everything.
func (s *CartResolver) checkStock(ctx context.Context, stockID, title string, stocked bool, quantity int) error {
	if !stocked && !s.checkStockLevels {
		return nil
	}

	available, err := s.stock.Available(ctx, stockID)
	if err != nil {
		return fmt.Errorf("check stock for %s: %w", stockID, err)
	}
	if quantity > available {
		return apperrors.InsufficientStock(title)
	}
	return nil
}

// attachGroupDiscount attaches the owner's best group discount and persists
// the cart when one was added.
func (s *CartResolver) attachGroupDiscount(ctx context.Context, cart *domain.Cart) error {
	before := cart.DiscountID
	if err := s.attachGroupDiscountLocal(ctx, cart); err != nil {
		return err
	}
	if cart.DiscountID == before {
		return nil
	}
	return s.save(ctx, cart)
}

// attachGroupDiscountLocal mutates the cart without saving, so callers can
// fold the change into a larger write.
func (s *CartResolver) attachGroupDiscountLocal(ctx context.Context, cart *domain.Cart) error {
	if !cart.HasOwner() || cart.HasDiscount() {
		return nil
	}

	d, err := s.discounts.BestForOwner(ctx, cart.OwnerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find group discount: %w", err)
	}

	cart.DiscountID = d.ID
	cart.DiscountCode = d.Code
	return nil
}

func (s *CartResolver) save(ctx context.Context, cart *domain.Cart) error {
	ok, err := s.store.SaveIfRevision(ctx, cart, cart.Revision)
	if err != nil {
		return apperrors.Store(fmt.Errorf("save cart: %w", err))
	}
	if !ok {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}
	return nil
}

func (s *CartResolver) publishUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logEventFailure(ctx, "cart.updated", cart.ID, err)
	}
}

func (s *CartResolver) logEventFailure(ctx context.Context, eventType, cartID string, err error) {
	s.logger.ErrorContext(ctx, "failed to publish event",
		slog.String("event_type", eventType),
		slog.String("cart_id", cartID),
		slog.String("error", err.Error()),
	)
}

func (s *CartResolver) newCart(ownerID string) *domain.Cart {
	return &domain.Cart{
		ID:           uuid.New().String(),
		AccessKey:    newAccessKey(),
		OwnerID:      ownerID,
		Items:        []domain.LineItem{},
		DeliveryType: domain.DeliveryDeliver,
	}
}

func validateAddInput(input AddItemInput) error {
	if input.StockID == "" {
		return apperrors.InvalidItem("stock id is required")
	}
	if input.Title == "" {
		return apperrors.InvalidItem("title is required")
	}
	if input.Quantity < 1 {
		return apperrors.InvalidItem("quantity must be at least 1")
	}
	if input.Quantity > MaxQuantityPerItem {
		return apperrors.InvalidItem(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if input.UnitPrice < 0 {
		return apperrors.InvalidItem("unit price must not be negative")
	}
	for _, c := range input.Customisations {
		if c.Title == "" || c.Value == "" {
			return apperrors.InvalidItem("customisations need a title and a value")
		}
	}
	return nil
}

func newAccessKey() string {
	// Two v4 UUIDs worth of entropy keeps the token opaque and unguessable.
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}
