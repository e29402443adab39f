package cart

import (
	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
)

// CartItemDTO is one rendered cart line.
type CartItemDTO struct {
	ProductID      uuid.UUID   `json:"product_id"`
	Title          string      `json:"title"`
	VariantIDs     []uuid.UUID `json:"variant_ids,omitempty"`
	Quantity       int         `json:"quantity"`
	UnitPriceCents int         `json:"unit_price_cents"`
	TotalCents     int         `json:"total_cents"`
}

// CartDTO is the API-facing projection of a cart. An absent cart renders as
// the empty shape rather than an error.
type CartDTO struct {
	Currency      enums.Currency `json:"currency"`
	Items         []CartItemDTO  `json:"items"`
	ItemCount     int            `json:"item_count"`
	SubtotalCents int            `json:"subtotal_cents"`
}

// AddItemInput captures an add-to-cart request.
type AddItemInput struct {
	ProductID  uuid.UUID
	VariantIDs []uuid.UUID
	Quantity   int
}

func emptyCart() CartDTO {
	return CartDTO{
		Currency: enums.CurrencyUSD,
		Items:    []CartItemDTO{},
	}
}
