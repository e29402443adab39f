package recent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/types"
)

// Repository encapsulates view-history persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a view-history repository bound to the provided
// gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Upsert records a view, bumping viewed_at on repeat views. Earlier
// timestamps never overwrite later ones, which keeps merges monotonic.
func (r *Repository) Upsert(ctx context.Context, owner types.Identity, productID uuid.UUID, viewedAt time.Time) error {
	if productID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO recent_views (id, owner_kind, owner_key, product_id, viewed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (owner_kind, owner_key, product_id)
DO UPDATE SET viewed_at = excluded.viewed_at WHERE excluded.viewed_at > recent_views.viewed_at`,
			uuid.New(), owner.Kind, owner.Key(), productID, viewedAt).
		Error
}

// TrimToNewest deletes the owner's view rows beyond the max newest ones so
// the history stays bounded at write time.
func (r *Repository) TrimToNewest(ctx context.Context, owner types.Identity, max int) error {
	if max <= 0 {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).
		Exec(`DELETE FROM recent_views
WHERE owner_kind = ? AND owner_key = ? AND id NOT IN (
	SELECT id FROM recent_views
	WHERE owner_kind = ? AND owner_key = ?
	ORDER BY viewed_at DESC, id DESC
	LIMIT ?
)`, owner.Kind, owner.Key(), owner.Kind, owner.Key(), max).
		Error
}

// FindByOwner loads every view row for the owner.
func (r *Repository) FindByOwner(ctx context.Context, owner types.Identity) ([]models.RecentView, error) {
	var rows []models.RecentView
	err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_key = ?", owner.Kind, owner.Key()).
		Order("viewed_at DESC").
		Find(&rows).Error
	return rows, err
}

type recentViewRecord struct {
	ProductID  uuid.UUID
	Title      string
	PriceCents int
	ViewedAt   time.Time
}

// ListWithProducts returns the owner's views most recent first, joined
// against the catalog. Views of products that no longer resolve are
// dropped by the join.
func (r *Repository) ListWithProducts(ctx context.Context, owner types.Identity, limit int) ([]RecentViewDTO, error) {
	var records []recentViewRecord
	err := r.db.WithContext(ctx).
		Table("recent_views rv").
		Select("rv.product_id", "p.title", "p.price_cents", "rv.viewed_at").
		Joins("JOIN products p ON p.id = rv.product_id").
		Where("rv.owner_kind = ? AND rv.owner_key = ?", owner.Kind, owner.Key()).
		Order("rv.viewed_at DESC").
		Limit(limit).
		Scan(&records).Error
	if err != nil {
		return nil, err
	}
	views := make([]RecentViewDTO, 0, len(records))
	for _, record := range records {
		views = append(views, RecentViewDTO{
			ProductID:  record.ProductID,
			Title:      record.Title,
			PriceCents: record.PriceCents,
			ViewedAt:   record.ViewedAt,
		})
	}
	return views, nil
}

// Clear deletes all view rows for the owner.
func (r *Repository) Clear(ctx context.Context, owner types.Identity) error {
	return r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_key = ?", owner.Kind, owner.Key()).
		Delete(&models.RecentView{}).
		Error
}
