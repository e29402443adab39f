package wishlist

import (
	"time"

	"github.com/google/uuid"
)

// WishlistItemDTO is one saved product/variant combination joined against
// the catalog.
type WishlistItemDTO struct {
	ID         uuid.UUID   `json:"id"`
	ProductID  uuid.UUID   `json:"product_id"`
	Title      string      `json:"title"`
	PriceCents int         `json:"price_cents"`
	VariantIDs []uuid.UUID `json:"variant_ids,omitempty"`
	AddedAt    time.Time   `json:"added_at"`
}

// WishlistPageDTO is one cursor page of wishlist items.
type WishlistPageDTO struct {
	Items      []WishlistItemDTO `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}
