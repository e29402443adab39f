package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/internal/products"
	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  description TEXT,
  price_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS variant_items (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  price_delta_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  owner_kind TEXT NOT NULL,
  owner_key TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (owner_kind, owner_key)
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_ids TEXT,
  variant_key TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id, variant_key)
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newCartService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		CartRepo:    NewRepository(db),
		ProductRepo: products.NewRepository(db),
		Tx:          &testTxRunner{db: db},
	})
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, db *gorm.DB, title string, priceCents int, variantDeltas ...int) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:         uuid.New(),
		SKU:        "sku-" + uuid.NewString()[:8],
		Title:      title,
		PriceCents: priceCents,
		Currency:   enums.CurrencyUSD,
		IsActive:   true,
	}
	require.NoError(t, db.Create(product).Error)
	for i, delta := range variantDeltas {
		variant := &models.VariantItem{
			ID:              uuid.New(),
			ProductID:       product.ID,
			Name:            "option",
			Stock:           10 + i,
			PriceDeltaCents: delta,
		}
		require.NoError(t, db.Create(variant).Error)
		product.VariantItems = append(product.VariantItems, *variant)
	}
	return product
}

func TestGetCartAbsentReturnsEmptyShape(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)

	dto, err := svc.GetCart(context.Background(), types.SessionIdentity("tok-empty"))
	require.NoError(t, err)
	assert.Empty(t, dto.Items)
	assert.Equal(t, 0, dto.SubtotalCents)
	assert.Equal(t, enums.CurrencyUSD, dto.Currency)
}

func TestAddItemSumsSameVariantCombination(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-sum")

	product := seedProduct(t, db, "Hoodie", 4500, 500)
	variantID := product.VariantItems[0].ID

	_, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{variantID}, Quantity: 2})
	require.NoError(t, err)
	dto, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{variantID}, Quantity: 3})
	require.NoError(t, err)

	require.Len(t, dto.Items, 1)
	assert.Equal(t, 5, dto.Items[0].Quantity)
	assert.Equal(t, 5000, dto.Items[0].UnitPriceCents)
	assert.Equal(t, 25000, dto.SubtotalCents)
}

func TestAddItemDistinctVariantSetsAreDistinctLines(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-distinct")

	product := seedProduct(t, db, "Tee", 2000, 0, 300)
	first := product.VariantItems[0].ID
	second := product.VariantItems[1].ID

	_, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{first}, Quantity: 1})
	require.NoError(t, err)
	dto, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{second}, Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, dto.Items, 2)

	// Selection order must not create a third line.
	dto, err = svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{second, first}, Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, dto.Items, 3)

	dto, err = svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{first, second}, Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, dto.Items, 3)
}

func TestAddItemValidation(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-validate")

	product := seedProduct(t, db, "Cap", 1500)

	_, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, Quantity: 0})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = svc.AddItem(ctx, owner, AddItemInput{ProductID: uuid.New(), Quantity: 1})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	_, err = svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantIDs: []uuid.UUID{uuid.New()}, Quantity: 1})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestUpdateItemQuantity(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-update")

	product := seedProduct(t, db, "Socks", 900)
	_, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	dto, err := svc.UpdateItemQuantity(ctx, owner, product.ID, nil, 7)
	require.NoError(t, err)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, 7, dto.Items[0].Quantity)

	// Zero removes the line.
	dto, err = svc.UpdateItemQuantity(ctx, owner, product.ID, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, dto.Items)

	_, err = svc.UpdateItemQuantity(ctx, owner, product.ID, nil, 1)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestUpdateItemQuantityMissingCart(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)

	_, err := svc.UpdateItemQuantity(context.Background(), types.SessionIdentity("tok-none"), uuid.New(), nil, 1)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestRemoveItemAndClear(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-remove")

	product := seedProduct(t, db, "Mug", 1200)
	_, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	dto, err := svc.RemoveItem(ctx, owner, product.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, dto.Items)

	// Clearing an absent cart is a no-op.
	require.NoError(t, svc.ClearCart(ctx, types.SessionIdentity("tok-never-existed")))

	_, err = svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)
	require.NoError(t, svc.ClearCart(ctx, owner))
	dto, err = svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, dto.Items)
}

func TestMergeAdoptsGuestCartWhenUserHasNone(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	token := "tok-adopt"
	userID := uuid.New()

	product := seedProduct(t, db, "Jacket", 9900)
	_, err := svc.AddItem(ctx, types.SessionIdentity(token), AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, svc.MergeGuestIntoUser(ctx, token, userID))

	userCart, err := svc.GetCart(ctx, types.UserIdentity(userID))
	require.NoError(t, err)
	require.Len(t, userCart.Items, 1)
	assert.Equal(t, 2, userCart.Items[0].Quantity)

	// The session key must be dead after adoption.
	guestCart, err := svc.GetCart(ctx, types.SessionIdentity(token))
	require.NoError(t, err)
	assert.Empty(t, guestCart.Items)
}

func TestMergeCombinesAndSumsWhenBothCartsExist(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	token := "tok-combine"
	userID := uuid.New()

	productA := seedProduct(t, db, "Shared", 1000)
	productB := seedProduct(t, db, "Guest Only", 2000)

	_, err := svc.AddItem(ctx, types.UserIdentity(userID), AddItemInput{ProductID: productA.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, types.SessionIdentity(token), AddItemInput{ProductID: productA.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, types.SessionIdentity(token), AddItemInput{ProductID: productB.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.MergeGuestIntoUser(ctx, token, userID))

	userCart, err := svc.GetCart(ctx, types.UserIdentity(userID))
	require.NoError(t, err)
	require.Len(t, userCart.Items, 2)
	byProduct := map[uuid.UUID]int{}
	for _, item := range userCart.Items {
		byProduct[item.ProductID] = item.Quantity
	}
	assert.Equal(t, 5, byProduct[productA.ID])
	assert.Equal(t, 1, byProduct[productB.ID])

	guestCart, err := svc.GetCart(ctx, types.SessionIdentity(token))
	require.NoError(t, err)
	assert.Empty(t, guestCart.Items)
}

func TestMergeIsSafeWhenGuestCartAbsent(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)

	require.NoError(t, svc.MergeGuestIntoUser(context.Background(), "tok-no-cart", uuid.New()))
}

func TestClearBySessionToken(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	ctx := context.Background()
	token := "tok-clear-session"

	product := seedProduct(t, db, "Poster", 800)
	_, err := svc.AddItem(ctx, types.SessionIdentity(token), AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.ClearBySessionToken(ctx, token))
	dto, err := svc.GetCart(ctx, types.SessionIdentity(token))
	require.NoError(t, err)
	assert.Empty(t, dto.Items)
}
