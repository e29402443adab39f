package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/db/models"
	dbtypes "github.com/rvelez/storefront-backend/pkg/db/types"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/outbox"
	"github.com/rvelez/storefront-backend/pkg/pagination"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockReducer decrements variant stock after a successful payment capture.
type StockReducer interface {
	ReduceVariantStock(ctx context.Context, variantID uuid.UUID, qty int) error
}

// CartClearer empties the cart that produced the order. Guest orders carry
// the originating session token; user orders clear by owner identity.
type CartClearer interface {
	ClearBySessionToken(ctx context.Context, sessionToken string) error
	ClearCart(ctx context.Context, owner types.Identity) error
}

// ConfirmPaymentInput identifies the order a payment confirmation belongs
// to. OrderRef wins; the provider references are the webhook fallback.
type ConfirmPaymentInput struct {
	OrderRef          string
	ProviderSessionID *string
	ProviderPaymentID *string
}

// Service exposes the order state machine.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (OrderDTO, error)
	GetByRef(ctx context.Context, orderRef string) (OrderDTO, error)
	AttachProviderSession(ctx context.Context, orderID uuid.UUID, providerSessionID string) error
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (OrderDTO, error)
	FailOrder(ctx context.Context, orderID uuid.UUID) (OrderDTO, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (OrderDTO, error)
	CompleteOrder(ctx context.Context, orderID uuid.UUID) (OrderDTO, error)
	AdminList(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderListDTO, error)
	AdminGet(ctx context.Context, orderID uuid.UUID) (OrderDTO, error)
	AdminUpdateStatus(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (OrderDTO, error)
}

// ServiceParams groups dependencies for the order service.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Stock  StockReducer
	Carts  CartClearer
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	stock  StockReducer
	carts  CartClearer
	logg   *logger.Logger
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders repo is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox publisher is required")
	}
	if params.Stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock reducer is required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart clearer is required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		stock:  params.Stock,
		carts:  params.Carts,
		logg:   params.Logger,
	}, nil
}

// CreateOrder opens a pending order from the frozen checkout snapshot and
// queues the order_created event in the same transaction.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (OrderDTO, error) {
	if !input.Provider.IsValid() {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "payment provider is required")
	}
	if len(input.Lines) == 0 {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "order must have at least one line")
	}
	if input.SessionToken == nil && input.UserID == nil {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "order must have an originating session or user")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}

	order := &models.Order{
		ID:             uuid.New(),
		OrderRef:       newOrderRef(),
		SessionToken:   input.SessionToken,
		UserID:         input.UserID,
		Status:         enums.OrderStatusPending,
		Provider:       input.Provider,
		Currency:       currency,
		BillingDetails: input.BillingDetails,
	}
	for _, line := range input.Lines {
		if line.Quantity < 1 {
			return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be at least 1")
		}
		normalized := types.NormalizeVariantIDs(line.VariantIDs)
		item := models.OrderLineItem{
			ID:             uuid.New(),
			ProductID:      line.ProductID,
			ProductTitle:   line.ProductTitle,
			VariantIDs:     dbtypes.UUIDArray(normalized),
			VariantKey:     types.VariantKey(normalized),
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     line.Quantity * line.UnitPriceCents,
		}
		order.Items = append(order.Items, item)
		order.SubtotalCents += item.TotalCents
	}
	order.TotalCents = order.SubtotalCents

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.statusEvent(enums.EventOrderCreated, order))
	})
	if err != nil {
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return toOrderDTO(order), nil
}

// GetByRef loads an order by its human reference.
func (s *service) GetByRef(ctx context.Context, orderRef string) (OrderDTO, error) {
	if strings.TrimSpace(orderRef) == "" {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "order ref is required")
	}
	order, err := s.repo.FindByRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return toOrderDTO(order), nil
}

// AttachProviderSession stores the checkout session reference handed back by
// the payment provider.
func (s *service) AttachProviderSession(ctx context.Context, orderID uuid.UUID, providerSessionID string) error {
	if providerSessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider session id is required")
	}
	if err := s.repo.SetProviderRefs(ctx, orderID, &providerSessionID, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider session")
	}
	return nil
}

// ConfirmPayment applies a verified payment capture. The conditional status
// update is the idempotency gate: stock reduction and cart clearing run only
// for the single caller that actually moved pending to paid. A confirmation
// for an order that already moved on is acknowledged as a no-op.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (OrderDTO, error) {
	order, err := s.findForPayment(ctx, input)
	if err != nil {
		return OrderDTO{}, err
	}

	if order.Status != enums.OrderStatusPending {
		if s.logg != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "payment confirmation ignored, order no longer pending")
		}
		return toOrderDTO(order), nil
	}

	transitioned := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
		if err != nil {
			return err
		}
		if affected == 0 {
			// A concurrent delivery won the transition.
			return nil
		}
		transitioned = true
		if err := repo.SetProviderRefs(ctx, order.ID, nil, input.ProviderPaymentID); err != nil {
			return err
		}
		order.Status = enums.OrderStatusPaid
		return s.outbox.Emit(ctx, tx, s.statusEvent(enums.EventOrderPaid, order))
	})
	if err != nil {
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}

	if transitioned {
		s.applyPaidSideEffects(ctx, order)
	} else if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "payment confirmation lost transition race, no side effects applied")
	}

	refreshed, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return toOrderDTO(refreshed), nil
}

// FailOrder marks a pending order failed after a declined payment.
func (s *service) FailOrder(ctx context.Context, orderID uuid.UUID) (OrderDTO, error) {
	return s.transition(ctx, orderID, enums.OrderStatusFailed)
}

// CancelOrder cancels a pending order.
func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID) (OrderDTO, error) {
	return s.transition(ctx, orderID, enums.OrderStatusCancelled)
}

// CompleteOrder closes out a paid order once it has been fulfilled.
func (s *service) CompleteOrder(ctx context.Context, orderID uuid.UUID) (OrderDTO, error) {
	return s.transition(ctx, orderID, enums.OrderStatusCompleted)
}

// AdminList returns one cursor page of orders for the back office.
func (s *service) AdminList(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderListDTO, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// AdminGet loads one order by id.
func (s *service) AdminGet(ctx context.Context, orderID uuid.UUID) (OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return toOrderDTO(order), nil
}

// AdminUpdateStatus drives a manual transition. Marking an order paid runs
// through the same confirmation path as a webhook so the side effects stay
// once-only.
func (s *service) AdminUpdateStatus(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (OrderDTO, error) {
	if !target.IsValid() {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if target == enums.OrderStatusPaid {
		order, err := s.AdminGet(ctx, orderID)
		if err != nil {
			return OrderDTO{}, err
		}
		return s.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: order.OrderRef})
	}
	return s.transition(ctx, orderID, target)
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == target {
		return toOrderDTO(order), nil
	}
	if !order.Status.CanTransitionTo(target) {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move to "+target.String()+" from "+order.Status.String())
	}

	from := order.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateStatusIfCurrent(ctx, order.ID, from, target)
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}
		order.Status = target
		return s.outbox.Emit(ctx, tx, s.statusEvent(eventTypeFor(target), order))
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return OrderDTO{}, typed
		}
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order")
	}

	refreshed, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return toOrderDTO(refreshed), nil
}

// applyPaidSideEffects reduces stock and clears the originating cart. Both
// are best effort: a line that cannot be decremented is logged and skipped
// rather than unwinding an already captured payment.
func (s *service) applyPaidSideEffects(ctx context.Context, order *models.Order) {
	for _, item := range order.Items {
		for _, variantID := range item.VariantIDs {
			if err := s.stock.ReduceVariantStock(ctx, variantID, item.Quantity); err != nil {
				if s.logg != nil {
					logCtx := s.logg.WithFields(ctx, map[string]any{
						"order_id":   order.ID.String(),
						"product_id": item.ProductID.String(),
						"variant_id": variantID.String(),
					})
					s.logg.Error(logCtx, "reduce variant stock", err)
				}
			}
		}
	}
	var clearErr error
	switch {
	case order.SessionToken != nil:
		clearErr = s.carts.ClearBySessionToken(ctx, *order.SessionToken)
	case order.UserID != nil:
		clearErr = s.carts.ClearCart(ctx, types.UserIdentity(*order.UserID))
	}
	if clearErr != nil && s.logg != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "clear cart after payment", clearErr)
	}
}

func (s *service) findForPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Order, error) {
	lookups := []func(context.Context) (*models.Order, error){}
	if strings.TrimSpace(input.OrderRef) != "" {
		lookups = append(lookups, func(ctx context.Context) (*models.Order, error) {
			return s.repo.FindByRef(ctx, input.OrderRef)
		})
	}
	if input.ProviderSessionID != nil && *input.ProviderSessionID != "" {
		lookups = append(lookups, func(ctx context.Context) (*models.Order, error) {
			return s.repo.FindByProviderSessionID(ctx, *input.ProviderSessionID)
		})
	}
	if input.ProviderPaymentID != nil && *input.ProviderPaymentID != "" {
		lookups = append(lookups, func(ctx context.Context) (*models.Order, error) {
			return s.repo.FindByProviderPaymentID(ctx, *input.ProviderPaymentID)
		})
	}
	if len(lookups) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment confirmation carries no order reference")
	}

	for _, lookup := range lookups {
		order, err := lookup(ctx)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment confirmation")
}

func (s *service) statusEvent(eventType enums.OutboxEventType, order *models.Order) outbox.DomainEvent {
	var actor *outbox.ActorRef
	if order.UserID != nil {
		actor = &outbox.ActorRef{UserID: *order.UserID, Role: enums.UserRoleCustomer.String()}
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Version:       1,
		Data: OrderStatusEvent{
			OrderID:    order.ID,
			OrderRef:   order.OrderRef,
			Status:     order.Status,
			Provider:   order.Provider,
			TotalCents: order.TotalCents,
		},
	}
}

func eventTypeFor(status enums.OrderStatus) enums.OutboxEventType {
	switch status {
	case enums.OrderStatusPaid:
		return enums.EventOrderPaid
	case enums.OrderStatusFailed:
		return enums.EventOrderFailed
	case enums.OrderStatusCancelled:
		return enums.EventOrderCancelled
	case enums.OrderStatusCompleted:
		return enums.EventOrderCompleted
	default:
		return enums.EventOrderCreated
	}
}

// newOrderRef mints the customer-facing order reference.
func newOrderRef() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "SF-" + strings.ToUpper(uuid.NewString()[:12])
	}
	return "SF-" + strings.ToUpper(hex.EncodeToString(buf))
}
