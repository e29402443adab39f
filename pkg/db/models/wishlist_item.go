package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
	"github.com/rvelez/storefront-backend/pkg/enums"
)

// WishlistItem links an owner to a saved product/variant combination.
type WishlistItem struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKind  enums.IdentityKind `gorm:"column:owner_kind;type:identity_kind;not null;uniqueIndex:wishlist_items_owner_line_key"`
	OwnerKey   string             `gorm:"column:owner_key;not null;uniqueIndex:wishlist_items_owner_line_key"`
	ProductID  uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index:wishlist_items_product_id_idx;uniqueIndex:wishlist_items_owner_line_key"`
	VariantIDs dbtypes.UUIDArray  `gorm:"column:variant_ids;type:uuid[]"`
	VariantKey string             `gorm:"column:variant_key;not null;default:'';uniqueIndex:wishlist_items_owner_line_key"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
