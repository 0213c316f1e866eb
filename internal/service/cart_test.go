package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/cart-service/internal/domain"
	apperrors "github.com/commercekit/cart-service/pkg/errors"
)

// --- Mock Store ---

type mockCartStore struct {
	mock.Mock
}

func (m *mockCartStore) FindByAccessKey(ctx context.Context, accessKey string) (*domain.Cart, error) {
	args := m.Called(ctx, accessKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartStore) FindByOwner(ctx context.Context, ownerID string) (*domain.Cart, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartStore) SaveIfRevision(ctx context.Context, cart *domain.Cart, expectedRevision int) (bool, error) {
	args := m.Called(ctx, cart, expectedRevision)
	if args.Bool(0) {
		cart.Revision = expectedRevision + 1
	}
	return args.Bool(0), args.Error(1)
}

func (m *mockCartStore) Delete(ctx context.Context, cartID string) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

func (m *mockCartStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Discounts ---

type mockDiscountSource struct {
	mock.Mock
}

func (m *mockDiscountSource) FindActiveByCode(ctx context.Context, code string) (*domain.Discount, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Discount), args.Error(1)
}

func (m *mockDiscountSource) BestForOwner(ctx context.Context, ownerID string) (*domain.Discount, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Discount), args.Error(1)
}

// --- Stubs ---

type stubChecker struct {
	levels map[string]int
}

func (s *stubChecker) Available(_ context.Context, stockID string) (int, error) {
	return s.levels[stockID], nil
}

type stubPublisher struct {
	updated, merged, cleared, deleted int
	lastMoved, lastDropped            []string
}

func (p *stubPublisher) PublishCartUpdated(context.Context, *domain.Cart) error {
	p.updated++
	return nil
}

func (p *stubPublisher) PublishCartMerged(_ context.Context, _ *domain.Cart, _ string, moved, dropped []string) error {
	p.merged++
	p.lastMoved = moved
	p.lastDropped = dropped
	return nil
}

func (p *stubPublisher) PublishCartCleared(context.Context, *domain.Cart) error {
	p.cleared++
	return nil
}

func (p *stubPublisher) PublishCartDeleted(context.Context, string, string) error {
	p.deleted++
	return nil
}

type fakeIdentity struct {
	ownerID string
	key     string
	cleared bool
}

func (f *fakeIdentity) OwnerID() string   { return f.ownerID }
func (f *fakeIdentity) AccessKey() string { return f.key }
func (f *fakeIdentity) SetAccessKey(key string) {
	f.key = key
	f.cleared = false
}
func (f *fakeIdentity) ClearAccessKey() {
	f.key = ""
	f.cleared = true
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	store     *mockCartStore
	discounts *mockDiscountSource
	checker   *stubChecker
	publisher *stubPublisher
	svc       *CartResolver
}

func newFixture(checkStockLevels bool) *fixture {
	f := &fixture{
		store:     new(mockCartStore),
		discounts: new(mockDiscountSource),
		checker:   &stubChecker{levels: map[string]int{}},
		publisher: &stubPublisher{},
	}
	f.svc = NewCartResolver(f.store, f.discounts, f.checker, f.publisher, newTestLogger(), checkStockLevels)
	return f
}

func anonymousCart() *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		ID:           "cart-anon",
		AccessKey:    "key-anon",
		Items:        []domain.LineItem{},
		DeliveryType: domain.DeliveryDeliver,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func ownedCart(ownerID string) *domain.Cart {
	c := anonymousCart()
	c.ID = "cart-owned"
	c.AccessKey = "key-owned"
	c.OwnerID = ownerID
	return c
}

func lineItem(stockID string, quantity int) domain.LineItem {
	return domain.LineItem{
		ID:        "item-" + stockID,
		Key:       domain.ItemKey(stockID, nil),
		Title:     "Item " + stockID,
		StockID:   stockID,
		Quantity:  quantity,
		UnitPrice: 1000,
	}
}

// --- Resolve ---

func TestResolve_GuestWithoutToken_CreatesCart(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{}

	f.store.On("SaveIfRevision", ctx, mock.AnythingOfType("*domain.Cart"), 0).Return(true, nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.NotEmpty(t, cart.AccessKey)
	assert.Empty(t, cart.OwnerID)
	assert.Equal(t, cart.AccessKey, identity.key)
	f.store.AssertExpectations(t)
}

func TestResolve_GuestWithToken_ReturnsExistingCart(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{key: "key-anon"}
	anon := anonymousCart()

	f.store.On("FindByAccessKey", ctx, "key-anon").Return(anon, nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	assert.Equal(t, anon.ID, cart.ID)
	assert.Equal(t, "key-anon", identity.key)
	f.store.AssertExpectations(t)
}

func TestResolve_GuestWithForeignToken_CreatesFreshCart(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{key: "key-owned"}

	// Token points at a cart claimed by an account; a guest cannot use it.
	f.store.On("FindByAccessKey", ctx, "key-owned").Return(ownedCart("user-9"), nil)
	f.store.On("SaveIfRevision", ctx, mock.AnythingOfType("*domain.Cart"), 0).Return(true, nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	assert.NotEqual(t, "cart-owned", cart.ID)
	assert.Empty(t, cart.OwnerID)
	assert.Equal(t, cart.AccessKey, identity.key)
}

func TestResolve_OwnerWithOwnedCart_ClearsToken(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{ownerID: "user-1"}
	owned := ownedCart("user-1")
	owned.DiscountID = "disc-x"

	f.store.On("FindByOwner", ctx, "user-1").Return(owned, nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	assert.Equal(t, "cart-owned", cart.ID)
	assert.True(t, identity.cleared)
	// Cart already carries a discount so no group lookup happens.
	f.discounts.AssertNotCalled(t, "BestForOwner", mock.Anything, mock.Anything)
}

func TestResolve_OwnerWithoutDiscount_AttachesGroupDiscount(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{ownerID: "user-1"}
	owned := ownedCart("user-1")

	f.store.On("FindByOwner", ctx, "user-1").Return(owned, nil)
	f.discounts.On("BestForOwner", ctx, "user-1").
		Return(&domain.Discount{ID: "disc-1", Code: "LOYAL20", Amount: 2000}, nil)
	f.store.On("SaveIfRevision", ctx, owned, 1).Return(true, nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	assert.Equal(t, "disc-1", cart.DiscountID)
	assert.Equal(t, "LOYAL20", cart.DiscountCode)
	f.store.AssertExpectations(t)
}

func TestResolve_OwnerWithNoGroupDiscount_NoSave(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{ownerID: "user-1"}
	owned := ownedCart("user-1")

	f.store.On("FindByOwner", ctx, "user-1").Return(owned, nil)
	f.discounts.On("BestForOwner", ctx, "user-1").Return(nil, apperrors.ErrNotFound)

	_, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	f.store.AssertNotCalled(t, "SaveIfRevision", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_OwnerClaimsAnonymousCart(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{ownerID: "user-1", key: "key-anon"}
	anon := anonymousCart()

	f.store.On("FindByOwner", ctx, "user-1").Return(nil, apperrors.ErrNotFound)
	f.store.On("FindByAccessKey", ctx, "key-anon").Return(anon, nil)
	f.discounts.On("BestForOwner", ctx, "user-1").Return(nil, apperrors.ErrNotFound)
	f.store.On("SaveIfRevision", ctx, anon, 1).Return(true, nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	assert.Equal(t, "user-1", cart.OwnerID)
	assert.True(t, identity.cleared)
	f.store.AssertExpectations(t)
}

func TestResolve_MergeMovesAndDropsLines(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{ownerID: "user-1", key: "key-anon"}

	shared := lineItem("sku-shared", 2)
	owned := ownedCart("user-1")
	owned.DiscountID = "disc-x"
	owned.Items = []domain.LineItem{shared}

	anon := anonymousCart()
	anonShared := lineItem("sku-shared", 5)
	anonOnly := lineItem("sku-only", 1)
	anon.Items = []domain.LineItem{anonShared, anonOnly}

	f.store.On("FindByOwner", ctx, "user-1").Return(owned, nil)
	f.store.On("FindByAccessKey", ctx, "key-anon").Return(anon, nil)
	f.store.On("SaveIfRevision", ctx, owned, 1).Return(true, nil)
	f.store.On("Delete", ctx, "cart-anon").Return(nil)

	cart, err := f.svc.Resolve(ctx, identity)

	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	// Overlapping key keeps the owned quantity.
	idx := cart.FindItemIndex(shared.Key)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 2, cart.Items[idx].Quantity)

	// Moved line is re-parented onto the owned cart.
	idx = cart.FindItemIndex(anonOnly.Key)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "cart-owned", cart.Items[idx].CartID)
	assert.NotEqual(t, anonOnly.ID, cart.Items[idx].ID)

	assert.True(t, identity.cleared)
	assert.Equal(t, 1, f.publisher.merged)
	assert.Equal(t, []string{anonOnly.Key}, f.publisher.lastMoved)
	assert.Equal(t, []string{shared.Key}, f.publisher.lastDropped)
	f.store.AssertExpectations(t)
}

// --- AddItem ---

func TestAddItem_AppendsNewLine(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.AddItem(ctx, cart, AddItemInput{
		Title:     "Widget",
		StockID:   "sku-1",
		Quantity:  2,
		UnitPrice: 1500,
	})

	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, domain.ItemKey("sku-1", nil), got.Items[0].Key)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.NotEmpty(t, got.Items[0].ID)
	assert.Equal(t, cart.ID, got.Items[0].CartID)
	assert.Equal(t, 1, f.publisher.updated)
}

func TestAddItem_CoalescesOnMatchingKey(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.Items = []domain.LineItem{lineItem("sku-1", 2)}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.AddItem(ctx, cart, AddItemInput{
		Title:     "Widget",
		StockID:   "sku-1",
		Quantity:  3,
		UnitPrice: 1500,
	})

	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 5, got.Items[0].Quantity)
}

func TestAddItem_CustomisationsSeparateLines(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.Items = []domain.LineItem{lineItem("sku-1", 1)}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.AddItem(ctx, cart, AddItemInput{
		Title:    "Widget",
		StockID:  "sku-1",
		Quantity: 1,
		Customisations: []CustomisationInput{
			{Title: "Engraving", Value: "ABC", Price: 250},
		},
	})

	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
}

func TestAddItem_StockGate(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	f.checker.levels["sku-1"] = 2

	_, err := f.svc.AddItem(ctx, cart, AddItemInput{
		Title:    "Widget",
		StockID:  "sku-1",
		Quantity: 3,
		Stocked:  true,
	})

	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	f.store.AssertNotCalled(t, "SaveIfRevision", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddItem_GlobalStockSwitchGatesUnstockedLines(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	cart := anonymousCart()
	f.checker.levels["sku-1"] = 0

	_, err := f.svc.AddItem(ctx, cart, AddItemInput{
		Title:    "Widget",
		StockID:  "sku-1",
		Quantity: 1,
	})

	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

func TestAddItem_UnstockedSkipsGate(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	// No stock anywhere, but the line is not stock-tracked.

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	_, err := f.svc.AddItem(ctx, cart, AddItemInput{
		Title:    "Widget",
		StockID:  "sku-1",
		Quantity: 100,
	})

	require.NoError(t, err)
}

func TestAddItem_InvalidShape(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()

	tests := []struct {
		name  string
		input AddItemInput
	}{
		{"missing stock id", AddItemInput{Title: "W", Quantity: 1}},
		{"missing title", AddItemInput{StockID: "sku-1", Quantity: 1}},
		{"zero quantity", AddItemInput{Title: "W", StockID: "sku-1", Quantity: 0}},
		{"negative price", AddItemInput{Title: "W", StockID: "sku-1", Quantity: 1, UnitPrice: -1}},
		{"bad customisation", AddItemInput{Title: "W", StockID: "sku-1", Quantity: 1,
			Customisations: []CustomisationInput{{Title: "", Value: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItem(ctx, cart, tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidItem)
		})
	}
	f.store.AssertNotCalled(t, "SaveIfRevision", mock.Anything, mock.Anything, mock.Anything)
}

// --- UpdateItem ---

func TestUpdateItem_SetsAbsoluteQuantity(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	cart.Items = []domain.LineItem{item}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.UpdateItem(ctx, cart, item.Key, 7)

	require.NoError(t, err)
	assert.Equal(t, 7, got.Items[0].Quantity)
	assert.Equal(t, 1, f.publisher.updated)
}

func TestUpdateItem_ZeroRemovesLine(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	cart.Items = []domain.LineItem{item}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.UpdateItem(ctx, cart, item.Key, 0)

	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestUpdateItem_NegativeFloorsToZero(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	cart.Items = []domain.LineItem{item}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.UpdateItem(ctx, cart, item.Key, -5)

	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestUpdateItem_LockedRejected(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	item.Locked = true
	cart.Items = []domain.LineItem{item}

	_, err := f.svc.UpdateItem(ctx, cart, item.Key, 5)

	assert.ErrorIs(t, err, apperrors.ErrItemLocked)
	f.store.AssertNotCalled(t, "SaveIfRevision", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateItem_StockGateOnAbsoluteQuantity(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	item.Stocked = true
	cart.Items = []domain.LineItem{item}
	f.checker.levels["sku-1"] = 4

	_, err := f.svc.UpdateItem(ctx, cart, item.Key, 5)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)
	got, err := f.svc.UpdateItem(ctx, cart, item.Key, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Items[0].Quantity)
}

func TestUpdateItem_UnknownKey(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()

	_, err := f.svc.UpdateItem(ctx, cart, "missing", 1)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateItem_ConcurrentModification(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	cart.Items = []domain.LineItem{item}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(false, nil)

	_, err := f.svc.UpdateItem(ctx, cart, item.Key, 5)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

// --- RemoveItem / RemoveAll / Clear ---

func TestRemoveItem_LockedLinesAreRemovable(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	item := lineItem("sku-1", 2)
	item.Locked = true
	cart.Items = []domain.LineItem{item}

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.RemoveItem(ctx, cart, item.Key)

	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestRemoveItem_UnknownKey(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()

	_, err := f.svc.RemoveItem(ctx, cart, "missing")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveAll_KeepsDiscountAndPostage(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.Items = []domain.LineItem{lineItem("sku-1", 2), lineItem("sku-2", 1)}
	cart.DiscountID = "disc-1"
	cart.DiscountCode = "CODE"
	cart.PostageID = "post-1"

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.RemoveAll(ctx, cart)

	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Equal(t, "disc-1", got.DiscountID)
	assert.Equal(t, "post-1", got.PostageID)
}

func TestClear_ResetsEverything(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.Items = []domain.LineItem{lineItem("sku-1", 2)}
	cart.DiscountID = "disc-1"
	cart.DiscountCode = "CODE"
	cart.PostageID = "post-1"

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.Clear(ctx, cart)

	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.DiscountID)
	assert.Empty(t, got.DiscountCode)
	assert.Empty(t, got.PostageID)
	assert.Equal(t, 1, f.publisher.cleared)
}

// --- SetDiscount ---

func TestSetDiscount_UnknownCodeIsSilentNoOp(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()

	f.discounts.On("FindActiveByCode", ctx, "NOPE").Return(nil, apperrors.ErrNotFound)

	got, err := f.svc.SetDiscount(ctx, cart, "NOPE")

	require.NoError(t, err)
	assert.Empty(t, got.DiscountCode)
	f.store.AssertNotCalled(t, "SaveIfRevision", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetDiscount_SameCodeIsNoOp(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.DiscountID = "disc-1"
	cart.DiscountCode = "SUMMER10"

	_, err := f.svc.SetDiscount(ctx, cart, "SUMMER10")

	require.NoError(t, err)
	f.discounts.AssertNotCalled(t, "FindActiveByCode", mock.Anything, mock.Anything)
}

func TestSetDiscount_ReplacesExisting(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.DiscountID = "disc-1"
	cart.DiscountCode = "OLD"

	f.discounts.On("FindActiveByCode", ctx, "NEW").
		Return(&domain.Discount{ID: "disc-2", Code: "NEW"}, nil)
	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.SetDiscount(ctx, cart, "NEW")

	require.NoError(t, err)
	assert.Equal(t, "disc-2", got.DiscountID)
	assert.Equal(t, "NEW", got.DiscountCode)
}

func TestRemoveDiscount_DetachesAndKeepsItems(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.Items = []domain.LineItem{lineItem("sku-1", 2)}
	cart.DiscountID = "disc-1"
	cart.DiscountCode = "SUMMER10"
	cart.PostageID = "post-1"

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.RemoveDiscount(ctx, cart)

	require.NoError(t, err)
	assert.Empty(t, got.DiscountID)
	assert.Empty(t, got.DiscountCode)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, "post-1", got.PostageID)
	assert.Equal(t, 1, f.publisher.updated)
}

func TestRemoveDiscount_NoDiscountIsNoOp(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	_, err := f.svc.RemoveDiscount(ctx, anonymousCart())

	require.NoError(t, err)
	f.store.AssertNotCalled(t, "SaveIfRevision", mock.Anything, mock.Anything, mock.Anything)
}

func TestSave_StoreFailureMapsToStoreError(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.Items = []domain.LineItem{lineItem("sku-1", 1)}

	f.store.On("SaveIfRevision", ctx, cart, 1).
		Return(false, errors.New("connection refused"))

	_, err := f.svc.RemoveAll(ctx, cart)

	assert.ErrorIs(t, err, apperrors.ErrStore)
}

// --- Delivery & postage ---

func TestSetDeliveryType_ResetsPostage(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	cart := anonymousCart()
	cart.PostageID = "post-1"

	f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

	got, err := f.svc.SetDeliveryType(ctx, cart, domain.DeliveryCollect)

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryCollect, got.DeliveryType)
	assert.Empty(t, got.PostageID)
}

func TestSetDeliveryType_Invalid(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	_, err := f.svc.SetDeliveryType(ctx, anonymousCart(), "teleport")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSetPostage(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	t.Run("rejected for undeliverable cart", func(t *testing.T) {
		cart := anonymousCart()
		cart.Items = []domain.LineItem{lineItem("sku-1", 1)}

		_, err := f.svc.SetPostage(ctx, cart, "post-1")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("rejected for collection", func(t *testing.T) {
		cart := anonymousCart()
		item := lineItem("sku-1", 1)
		item.Deliverable = true
		cart.Items = []domain.LineItem{item}
		cart.DeliveryType = domain.DeliveryCollect

		_, err := f.svc.SetPostage(ctx, cart, "post-1")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("accepted for deliverable cart", func(t *testing.T) {
		cart := anonymousCart()
		item := lineItem("sku-1", 1)
		item.Deliverable = true
		cart.Items = []domain.LineItem{item}

		f.store.On("SaveIfRevision", ctx, cart, 1).Return(true, nil)

		got, err := f.svc.SetPostage(ctx, cart, "post-1")
		require.NoError(t, err)
		assert.Equal(t, "post-1", got.PostageID)
	})
}

// --- Destroy ---

func TestDestroy_DeletesCartAndClearsToken(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	identity := &fakeIdentity{key: "key-anon"}
	cart := anonymousCart()

	f.store.On("Delete", ctx, "cart-anon").Return(nil)

	err := f.svc.Destroy(ctx, identity, cart)

	require.NoError(t, err)
	assert.True(t, identity.cleared)
	assert.Equal(t, 1, f.publisher.deleted)
}
