package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
)

// CartItem is one line in a cart. VariantKey is the canonical render of the
// sorted variant selection; the unique index makes (cart, product, selection)
// a single summed line.
type CartItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID         uuid.UUID         `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:cart_items_line_key"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null;uniqueIndex:cart_items_line_key"`
	VariantIDs     dbtypes.UUIDArray `gorm:"column:variant_ids;type:uuid[]"`
	VariantKey     string            `gorm:"column:variant_key;not null;default:'';uniqueIndex:cart_items_line_key"`
	Quantity       int               `gorm:"column:quantity;not null"`
	UnitPriceCents int               `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
