package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository constructs an order repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its frozen lines.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID loads an order with its lines.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByRef loads an order by its human order reference.
func (r *repository) FindByRef(ctx context.Context, orderRef string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_ref = ?", orderRef).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByProviderSessionID loads an order by the checkout session reference
// the payment provider echoes back in webhooks.
func (r *repository) FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("provider_session_id = ?", providerSessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByProviderPaymentID loads an order by the provider's payment id.
func (r *repository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("provider_payment_id = ?", providerPaymentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatusIfCurrent moves the order to the target status only when it
// still holds the expected one. The affected row count tells the caller
// whether the transition actually happened or a concurrent writer won.
func (r *repository) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error) {
	updates := map[string]any{"status": to}
	now := time.Now().UTC()
	switch to {
	case enums.OrderStatusPaid:
		updates["paid_at"] = now
	case enums.OrderStatusFailed:
		updates["failed_at"] = now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
	case enums.OrderStatusCompleted:
		updates["completed_at"] = now
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// SetProviderRefs stores the provider's session/payment references once the
// external checkout is created or confirmed.
func (r *repository) SetProviderRefs(ctx context.Context, id uuid.UUID, providerSessionID, providerPaymentID *string) error {
	updates := map[string]any{}
	if providerSessionID != nil {
		updates["provider_session_id"] = *providerSessionID
	}
	if providerPaymentID != nil {
		updates["provider_payment_id"] = *providerPaymentID
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).
		Error
}

// List returns one cursor page of orders, newest first, optionally filtered
// by status.
func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderListDTO, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)
	decodedCursor, err := pagination.ParseCursor(strings.TrimSpace(params.Cursor))
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Preload("Items").
		Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var rows []models.Order
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer).Find(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	list := &OrderListDTO{
		Orders:     make([]OrderDTO, 0, len(rows)),
		NextCursor: nextCursor,
	}
	for i := range rows {
		list.Orders = append(list.Orders, toOrderDTO(&rows[i]))
	}
	return list, nil
}
