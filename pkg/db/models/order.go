package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/types"
)

// Order is the checkout snapshot plus its payment lifecycle state.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderRef          string                `gorm:"column:order_ref;not null;uniqueIndex:orders_order_ref_key"`
	SessionToken      *string               `gorm:"column:session_token;index:orders_session_token_idx"`
	UserID            *uuid.UUID            `gorm:"column:user_id;type:uuid;index:orders_user_id_idx"`
	Status            enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null"`
	ProviderSessionID *string               `gorm:"column:provider_session_id;index:orders_provider_session_idx"`
	ProviderPaymentID *string               `gorm:"column:provider_payment_id;index:orders_provider_payment_idx"`
	Currency          enums.Currency        `gorm:"column:currency;not null;default:'USD'"`
	SubtotalCents     int                   `gorm:"column:subtotal_cents;not null"`
	TotalCents        int                   `gorm:"column:total_cents;not null"`
	BillingDetails    *types.BillingDetails `gorm:"column:billing_details;type:jsonb;serializer:json"`
	Items             []OrderLineItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt            *time.Time            `gorm:"column:paid_at"`
	FailedAt          *time.Time            `gorm:"column:failed_at"`
	CancelledAt       *time.Time            `gorm:"column:cancelled_at"`
	CompletedAt       *time.Time            `gorm:"column:completed_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
