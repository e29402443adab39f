package wishlist

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
	"github.com/rvelez/storefront-backend/pkg/pagination"
	"github.com/rvelez/storefront-backend/pkg/types"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
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

// AddItem inserts a wishlist entry and ignores duplicates.
func (r *Repository) AddItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantIDs []uuid.UUID) error {
	if productID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO wishlist_items (id, owner_kind, owner_key, product_id, variant_ids, variant_key)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_kind, owner_key, product_id, variant_key) DO NOTHING`,
			uuid.New(), owner.Kind, owner.Key(), productID, dbtypes.UUIDArray(types.NormalizeVariantIDs(variantIDs)), types.VariantKey(variantIDs)).
		Error
}

// RemoveItem deletes the entry if it exists.
func (r *Repository) RemoveItem(ctx context.Context, owner types.Identity, productID uuid.UUID, variantKey string) error {
	return r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_key = ? AND product_id = ? AND variant_key = ?",
			owner.Kind, owner.Key(), productID, variantKey).
		Delete(&models.WishlistItem{}).
		Error
}

// Clear deletes all entries for the owner.
func (r *Repository) Clear(ctx context.Context, owner types.Identity) error {
	return r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_key = ?", owner.Kind, owner.Key()).
		Delete(&models.WishlistItem{}).
		Error
}

// FindByOwner loads every entry for the owner, newest first.
func (r *Repository) FindByOwner(ctx context.Context, owner types.Identity) ([]models.WishlistItem, error) {
	var rows []models.WishlistItem
	err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_key = ?", owner.Kind, owner.Key()).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

type wishlistItemRecord struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Title      string
	PriceCents int
	VariantIDs dbtypes.UUIDArray
	CreatedAt  time.Time
}

// ListItems returns one cursor page of wishlist items joined against the
// catalog.
func (r *Repository) ListItems(ctx context.Context, owner types.Identity, params pagination.Params) (WishlistPageDTO, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	decodedCursor, err := pagination.ParseCursor(strings.TrimSpace(params.Cursor))
	if err != nil {
		return WishlistPageDTO{}, err
	}

	query := r.db.WithContext(ctx).
		Table("wishlist_items wi").
		Select("wi.id", "wi.product_id", "p.title", "p.price_cents", "wi.variant_ids", "wi.created_at").
		Joins("JOIN products p ON p.id = wi.product_id").
		Where("wi.owner_kind = ? AND wi.owner_key = ?", owner.Kind, owner.Key())

	if decodedCursor != nil {
		query = query.Where("(wi.created_at < ?) OR (wi.created_at = ? AND wi.id < ?)",
			decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var records []wishlistItemRecord
	if err := query.Order("wi.created_at DESC").Order("wi.id DESC").Limit(limitWithBuffer).Scan(&records).Error; err != nil {
		return WishlistPageDTO{}, err
	}

	nextCursor := ""
	if len(records) > normalizedLimit {
		records = records[:normalizedLimit]
		last := records[len(records)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	items := make([]WishlistItemDTO, 0, len(records))
	for _, record := range records {
		items = append(items, WishlistItemDTO{
			ID:         record.ID,
			ProductID:  record.ProductID,
			Title:      record.Title,
			PriceCents: record.PriceCents,
			VariantIDs: []uuid.UUID(record.VariantIDs),
			AddedAt:    record.CreatedAt,
		})
	}
	return WishlistPageDTO{Items: items, NextCursor: nextCursor}, nil
}
