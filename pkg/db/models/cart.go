package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
)

// Cart is the single open cart for a guest session or an authenticated user.
// The owner pair is the aggregate key: a guest cart keys on the session
// token, a user cart on the user id. Re-keying a cart on login rewrites the
// pair, which is what severs the old session linkage.
type Cart struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKind enums.IdentityKind `gorm:"column:owner_kind;type:identity_kind;not null;uniqueIndex:carts_owner_key"`
	OwnerKey  string             `gorm:"column:owner_key;not null;uniqueIndex:carts_owner_key"`
	Currency  enums.Currency     `gorm:"column:currency;not null;default:'USD'"`
	Items     []CartItem         `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
