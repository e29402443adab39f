package recent

import (
	"time"

	"github.com/google/uuid"
)

// RecentViewDTO is one recently-viewed product joined against the catalog.
type RecentViewDTO struct {
	ProductID  uuid.UUID `json:"product_id"`
	Title      string    `json:"title"`
	PriceCents int       `json:"price_cents"`
	ViewedAt   time.Time `json:"viewed_at"`
}
