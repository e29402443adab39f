package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByRef(ctx context.Context, orderRef string) (*models.Order, error)
	FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Order, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error)
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error)
	SetProviderRefs(ctx context.Context, id uuid.UUID, providerSessionID, providerPaymentID *string) error
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderListDTO, error)
}
