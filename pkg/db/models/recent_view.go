package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
)

// RecentView records the latest time an owner looked at a product. One row
// per (owner, product); repeat views bump ViewedAt.
type RecentView struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKind enums.IdentityKind `gorm:"column:owner_kind;type:identity_kind;not null;uniqueIndex:recent_views_owner_product_key"`
	OwnerKey  string             `gorm:"column:owner_key;not null;uniqueIndex:recent_views_owner_product_key"`
	ProductID uuid.UUID          `gorm:"column:product_id;type:uuid;not null;uniqueIndex:recent_views_owner_product_key"`
	ViewedAt  time.Time          `gorm:"column:viewed_at;not null;index:recent_views_viewed_at_idx"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
}
