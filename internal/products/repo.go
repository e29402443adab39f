package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
)

// ErrInsufficientStock signals a conditional stock decrement matched no row.
var ErrInsufficientStock = errors.New("insufficient variant stock")

// Repository encapsulates catalog persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a product repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a product with its variant items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("VariantItems").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the products matching the given ids. Missing ids are
// simply absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

// FindVariantItems loads variant rows by id.
func (r *Repository) FindVariantItems(ctx context.Context, ids []uuid.UUID) ([]models.VariantItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.VariantItem
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

// ReduceVariantStock decrements stock only when enough remains. The guard in
// the WHERE clause keeps the counter from going negative under concurrent
// fulfillment.
func (r *Repository) ReduceVariantStock(ctx context.Context, variantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return gorm.ErrInvalidValue
	}
	result := r.db.WithContext(ctx).
		Exec(`UPDATE variant_items SET stock = stock - ? WHERE id = ? AND stock >= ?`, qty, variantID, qty)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// UnitPriceCents computes the effective line price: base price plus the
// deltas of the selected variants.
func UnitPriceCents(product *models.Product, variantIDs []uuid.UUID) int {
	if product == nil {
		return 0
	}
	price := product.PriceCents
	if len(variantIDs) == 0 {
		return price
	}
	selected := make(map[uuid.UUID]struct{}, len(variantIDs))
	for _, id := range variantIDs {
		selected[id] = struct{}{}
	}
	for _, variant := range product.VariantItems {
		if _, ok := selected[variant.ID]; ok {
			price += variant.PriceDeltaCents
		}
	}
	return price
}

// ToSummary maps the model onto the API projection.
func ToSummary(product models.Product) ProductSummary {
	return ProductSummary{
		ID:         product.ID,
		SKU:        product.SKU,
		Title:      product.Title,
		PriceCents: product.PriceCents,
		Currency:   product.Currency.String(),
		IsActive:   product.IsActive,
		CreatedAt:  product.CreatedAt,
		UpdatedAt:  product.UpdatedAt,
	}
}
