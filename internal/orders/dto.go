package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/types"
)

// LineSnapshot is one cart line frozen at checkout time.
type LineSnapshot struct {
	ProductID      uuid.UUID
	ProductTitle   string
	VariantIDs     []uuid.UUID
	Quantity       int
	UnitPriceCents int
}

// CreateOrderInput captures everything needed to open an order in pending.
type CreateOrderInput struct {
	SessionToken   *string
	UserID         *uuid.UUID
	Provider       enums.PaymentProvider
	Currency       enums.Currency
	BillingDetails *types.BillingDetails
	Lines          []LineSnapshot
}

// OrderLineDTO is the API-facing projection of a frozen line.
type OrderLineDTO struct {
	ProductID      uuid.UUID   `json:"product_id"`
	ProductTitle   string      `json:"product_title"`
	VariantIDs     []uuid.UUID `json:"variant_ids,omitempty"`
	Quantity       int         `json:"quantity"`
	UnitPriceCents int         `json:"unit_price_cents"`
	TotalCents     int         `json:"total_cents"`
}

// OrderDTO is the API-facing projection of an order.
type OrderDTO struct {
	ID             uuid.UUID             `json:"id"`
	OrderRef       string                `json:"order_ref"`
	Status         enums.OrderStatus     `json:"status"`
	Provider       enums.PaymentProvider `json:"provider"`
	Currency       enums.Currency        `json:"currency"`
	SubtotalCents  int                   `json:"subtotal_cents"`
	TotalCents     int                   `json:"total_cents"`
	BillingDetails *types.BillingDetails `json:"billing_details,omitempty"`
	Items          []OrderLineDTO        `json:"items"`
	PaidAt         *time.Time            `json:"paid_at,omitempty"`
	FailedAt       *time.Time            `json:"failed_at,omitempty"`
	CancelledAt    *time.Time            `json:"cancelled_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// OrderListDTO is one cursor page of orders.
type OrderListDTO struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ListFilters narrows the admin order listing.
type ListFilters struct {
	Status *enums.OrderStatus
}

// OrderStatusEvent is the outbox payload for every order lifecycle change.
type OrderStatusEvent struct {
	OrderID    uuid.UUID             `json:"order_id"`
	OrderRef   string                `json:"order_ref"`
	Status     enums.OrderStatus     `json:"status"`
	Provider   enums.PaymentProvider `json:"provider"`
	TotalCents int                   `json:"total_cents"`
}

func toOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:             order.ID,
		OrderRef:       order.OrderRef,
		Status:         order.Status,
		Provider:       order.Provider,
		Currency:       order.Currency,
		SubtotalCents:  order.SubtotalCents,
		TotalCents:     order.TotalCents,
		BillingDetails: order.BillingDetails,
		Items:          make([]OrderLineDTO, 0, len(order.Items)),
		PaidAt:         order.PaidAt,
		FailedAt:       order.FailedAt,
		CancelledAt:    order.CancelledAt,
		CompletedAt:    order.CompletedAt,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderLineDTO{
			ProductID:      item.ProductID,
			ProductTitle:   item.ProductTitle,
			VariantIDs:     item.VariantIDs,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return dto
}
