package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/types"
)

// Repository encapsulates cart persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided gorm DB.
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

// FindByOwner loads the cart keyed by the identity, items included.
func (r *Repository) FindByOwner(ctx context.Context, owner types.Identity) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("owner_kind = ? AND owner_key = ?", owner.Kind, owner.Key()).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a new cart for the owner.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	if cart.Currency == "" {
		cart.Currency = enums.CurrencyUSD
	}
	return r.db.WithContext(ctx).Create(cart).Error
}

// UpsertItem inserts a cart line or sums the quantity into the existing line
// with the same (product, variant selection) identity.
func (r *Repository) UpsertItem(ctx context.Context, cartID uuid.UUID, item models.CartItem) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO cart_items (id, cart_id, product_id, variant_ids, variant_key, quantity, unit_price_cents)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cart_id, product_id, variant_key)
DO UPDATE SET quantity = quantity + excluded.quantity, unit_price_cents = excluded.unit_price_cents`,
			uuid.New(), cartID, item.ProductID, dbtypes.UUIDArray(item.VariantIDs), item.VariantKey, item.Quantity, item.UnitPriceCents).
		Error
}

// SetItemQuantity overwrites the quantity on an existing line. The affected
// row count distinguishes a missing line from a successful write.
func (r *Repository) SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, variantKey string, quantity int) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ? AND variant_key = ?", cartID, productID, variantKey).
		Update("quantity", quantity)
	return result.RowsAffected, result.Error
}

// DeleteItem removes a single line if present.
func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID, variantKey string) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_key = ?", cartID, productID, variantKey).
		Delete(&models.CartItem{}).
		Error
}

// DeleteItems clears all lines from the cart.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).
		Error
}

// Delete removes the cart and its lines.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.DeleteItems(ctx, cartID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("id = ?", cartID).
		Delete(&models.Cart{}).
		Error
}

// ReKeyOwner rewrites the cart's owner pair, which is how a guest cart is
// adopted by a user. The old session key stops resolving afterwards.
func (r *Repository) ReKeyOwner(ctx context.Context, cartID uuid.UUID, owner types.Identity) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"owner_kind": owner.Kind,
			"owner_key":  owner.Key(),
		}).
		Error
}
