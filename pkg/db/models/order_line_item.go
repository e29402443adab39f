package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
)

// OrderLineItem is the frozen snapshot of one cart line at checkout. Title
// and price are copied so later catalog edits never rewrite history.
type OrderLineItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:order_line_items_order_id_idx"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	ProductTitle   string            `gorm:"column:product_title;not null"`
	VariantIDs     dbtypes.UUIDArray `gorm:"column:variant_ids;type:uuid[]"`
	VariantKey     string            `gorm:"column:variant_key;not null;default:''"`
	Quantity       int               `gorm:"column:quantity;not null"`
	UnitPriceCents int               `gorm:"column:unit_price_cents;not null"`
	TotalCents     int               `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}
