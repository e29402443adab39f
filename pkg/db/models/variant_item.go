package models

import (
	"time"

	"github.com/google/uuid"
)

// VariantItem is a selectable option value (size M, color red) carrying its
// own stock counter and optional price delta on top of the product price.
type VariantItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null;index:variant_items_product_id_idx"`
	Name            string    `gorm:"column:name;not null"`
	Stock           int       `gorm:"column:stock;not null;default:0"`
	PriceDeltaCents int       `gorm:"column:price_delta_cents;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
