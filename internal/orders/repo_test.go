package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_ref TEXT NOT NULL UNIQUE,
  session_token TEXT,
  user_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  provider TEXT NOT NULL,
  provider_session_id TEXT,
  provider_payment_id TEXT,
  currency TEXT NOT NULL DEFAULT 'USD',
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  billing_details TEXT,
  paid_at DATETIME,
  failed_at DATETIME,
  cancelled_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_title TEXT NOT NULL,
  variant_ids TEXT,
  variant_key TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME
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
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, createdAt time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		OrderRef:      "SF-" + uuid.NewString()[:12],
		Status:        status,
		Provider:      enums.PaymentProviderStripe,
		Currency:      enums.CurrencyUSD,
		SubtotalCents: 1000,
		TotalCents:    1000,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, db.Create(order).Error)
	item := &models.OrderLineItem{
		ID:             uuid.New(),
		OrderID:        order.ID,
		ProductID:      uuid.New(),
		ProductTitle:   "Seeded",
		Quantity:       1,
		UnitPriceCents: 1000,
		TotalCents:     1000,
	}
	require.NoError(t, db.Create(item).Error)
	order.Items = []models.OrderLineItem{*item}
	return order
}

func TestRepositoryLookups(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, enums.OrderStatusPending, time.Now().UTC())
	sessionID := "cs_test_123"
	paymentID := "pi_test_456"
	require.NoError(t, repo.SetProviderRefs(ctx, order.ID, &sessionID, &paymentID))

	byRef, err := repo.FindByRef(ctx, order.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byRef.ID)
	require.Len(t, byRef.Items, 1)

	bySession, err := repo.FindByProviderSessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, bySession.ID)

	byPayment, err := repo.FindByProviderPaymentID(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byPayment.ID)

	_, err = repo.FindByRef(ctx, "SF-MISSING")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateStatusIfCurrentGuardsConcurrentWriters(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, enums.OrderStatusPending, time.Now().UTC())

	affected, err := repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// The guard must reject a second identical transition.
	affected, err = repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	assert.NotNil(t, reloaded.PaidAt)
}

func TestListFiltersAndPaginates(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	seedOrder(t, db, enums.OrderStatusPending, now.Add(-3*time.Hour))
	seedOrder(t, db, enums.OrderStatusPaid, now.Add(-2*time.Hour))
	seedOrder(t, db, enums.OrderStatusPaid, now.Add(-time.Hour))
	seedOrder(t, db, enums.OrderStatusCompleted, now)

	paid := enums.OrderStatusPaid
	list, err := repo.List(ctx, pagination.Params{Limit: 1}, ListFilters{Status: &paid})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.NotEmpty(t, list.NextCursor)
	assert.Equal(t, enums.OrderStatusPaid, list.Orders[0].Status)

	second, err := repo.List(ctx, pagination.Params{Limit: 1, Cursor: list.NextCursor}, ListFilters{Status: &paid})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Empty(t, second.NextCursor)
	assert.True(t, second.Orders[0].CreatedAt.Before(list.Orders[0].CreatedAt))

	all, err := repo.List(ctx, pagination.Params{}, ListFilters{})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 4)
}
