package recent

import (
	"context"
	"testing"
	"time"

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

func setupRecentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:recent_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		`CREATE TABLE IF NOT EXISTS recent_views (
  id TEXT PRIMARY KEY,
  owner_kind TEXT NOT NULL,
  owner_key TEXT NOT NULL,
  product_id TEXT NOT NULL,
  viewed_at DATETIME NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (owner_kind, owner_key, product_id)
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newRecentService(t *testing.T, db *gorm.DB, maxItems int) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		RecentRepo:  NewRepository(db),
		ProductRepo: products.NewRepository(db),
		Tx:          &testTxRunner{db: db},
		MaxItems:    maxItems,
	})
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, db *gorm.DB, title string) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:         uuid.New(),
		SKU:        "sku-" + uuid.NewString()[:8],
		Title:      title,
		PriceCents: 1000,
		Currency:   enums.CurrencyUSD,
		IsActive:   true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestTrackViewUpsertsSingleRow(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 20)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-track")

	product := seedProduct(t, db, "Monitor")

	require.NoError(t, svc.TrackView(ctx, owner, product.ID))
	require.NoError(t, svc.TrackView(ctx, owner, product.ID))
	require.NoError(t, svc.TrackView(ctx, owner, product.ID))

	views, err := svc.GetRecent(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, product.ID, views[0].ProductID)
}

func TestTrackViewTrimsHistoryAtWriteTime(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 2)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-trim")

	oldest := seedProduct(t, db, "Oldest")
	middle := seedProduct(t, db, "Middle")
	newest := seedProduct(t, db, "Newest")
	repo := NewRepository(db)
	now := time.Now().UTC()
	require.NoError(t, repo.Upsert(ctx, owner, oldest.ID, now.Add(-2*time.Hour)))
	require.NoError(t, repo.Upsert(ctx, owner, middle.ID, now.Add(-time.Hour)))

	require.NoError(t, svc.TrackView(ctx, owner, newest.ID))

	rows, err := repo.FindByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, oldest.ID, row.ProductID)
	}
}

func TestTrackViewUnknownProduct(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 20)

	err := svc.TrackView(context.Background(), types.SessionIdentity("tok"), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGetRecentOrdersMostRecentFirstAndCaps(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 2)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-order")
	repo := NewRepository(db)

	now := time.Now().UTC()
	oldest := seedProduct(t, db, "Oldest")
	middle := seedProduct(t, db, "Middle")
	newest := seedProduct(t, db, "Newest")
	require.NoError(t, repo.Upsert(ctx, owner, oldest.ID, now.Add(-2*time.Hour)))
	require.NoError(t, repo.Upsert(ctx, owner, middle.ID, now.Add(-time.Hour)))
	require.NoError(t, repo.Upsert(ctx, owner, newest.ID, now))

	views, err := svc.GetRecent(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Newest", views[0].Title)
	assert.Equal(t, "Middle", views[1].Title)
}

func TestGetRecentSkipsUnresolvableProducts(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 20)
	ctx := context.Background()
	owner := types.SessionIdentity("tok-skip")
	repo := NewRepository(db)

	product := seedProduct(t, db, "Keyboard")
	require.NoError(t, repo.Upsert(ctx, owner, product.ID, time.Now().UTC()))
	require.NoError(t, repo.Upsert(ctx, owner, uuid.New(), time.Now().UTC()))

	views, err := svc.GetRecent(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, product.ID, views[0].ProductID)
}

func TestMergeKeepsLaterTimestampAndSingleRow(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 20)
	ctx := context.Background()
	token := "tok-merge"
	userID := uuid.New()
	repo := NewRepository(db)

	now := time.Now().UTC()
	shared := seedProduct(t, db, "Shared")
	guestOnly := seedProduct(t, db, "Guest Only")

	require.NoError(t, repo.Upsert(ctx, types.UserIdentity(userID), shared.ID, now.Add(-time.Hour)))
	require.NoError(t, repo.Upsert(ctx, types.SessionIdentity(token), shared.ID, now))
	require.NoError(t, repo.Upsert(ctx, types.SessionIdentity(token), guestOnly.ID, now.Add(-30*time.Minute)))

	require.NoError(t, svc.MergeGuestIntoUser(ctx, token, userID))

	views, err := svc.GetRecent(ctx, types.UserIdentity(userID), 10)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, shared.ID, views[0].ProductID)
	assert.WithinDuration(t, now, views[0].ViewedAt, time.Second)

	guestViews, err := svc.GetRecent(ctx, types.SessionIdentity(token), 10)
	require.NoError(t, err)
	assert.Empty(t, guestViews)
}

func TestMergeAcrossRotatedSessionsCollapsesToOneRow(t *testing.T) {
	db := setupRecentTestDB(t)
	svc := newRecentService(t, db, 20)
	ctx := context.Background()
	userID := uuid.New()
	repo := NewRepository(db)

	now := time.Now().UTC()
	product := seedProduct(t, db, "Webcam")

	require.NoError(t, repo.Upsert(ctx, types.SessionIdentity("tok-a"), product.ID, now.Add(-time.Hour)))
	require.NoError(t, repo.Upsert(ctx, types.SessionIdentity("tok-b"), product.ID, now))

	require.NoError(t, svc.MergeGuestIntoUser(ctx, "tok-a", userID))
	require.NoError(t, svc.MergeGuestIntoUser(ctx, "tok-b", userID))

	views, err := svc.GetRecent(ctx, types.UserIdentity(userID), 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.WithinDuration(t, now, views[0].ViewedAt, time.Second)

	// The earlier view must not clobber the later one when merged last.
	require.NoError(t, repo.Upsert(ctx, types.SessionIdentity("tok-c"), product.ID, now.Add(-2*time.Hour)))
	require.NoError(t, svc.MergeGuestIntoUser(ctx, "tok-c", userID))

	views, err = svc.GetRecent(ctx, types.UserIdentity(userID), 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.WithinDuration(t, now, views[0].ViewedAt, time.Second)
}
