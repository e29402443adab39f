package products

import (
	"time"

	"github.com/google/uuid"
)

// ProductSummary is the lightweight projection embedded in cart, wishlist and
// recently-viewed responses.
type ProductSummary struct {
	ID         uuid.UUID `json:"id"`
	SKU        string    `json:"sku"`
	Title      string    `json:"title"`
	PriceCents int       `json:"price_cents"`
	Currency   string    `json:"currency"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
