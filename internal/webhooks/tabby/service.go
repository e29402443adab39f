package tabbywebhook

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvelez/storefront-backend/internal/orders"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/metrics"
	"github.com/rvelez/storefront-backend/pkg/tabby"
)

const providerLabel = "tabby"

// TabbyPaymentClient exposes the payment verification surface of the Tabby API.
type TabbyPaymentClient interface {
	GetPayment(ctx context.Context, paymentID string) (*tabby.Payment, error)
	CapturePayment(ctx context.Context, paymentID string, amount decimal.Decimal) (*tabby.Payment, error)
}

// WebhookEvent is the Tabby delivery payload. Tabby posts the full payment
// object, webhook consumers must still re-fetch it before trusting the status.
type WebhookEvent struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	OrderRef  string `json:"order_ref"`
}

// EventID returns the idempotency identity of the delivery.
func (e *WebhookEvent) EventID() string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return id
	}
	return strings.TrimSpace(e.PaymentID)
}

type ServiceParams struct {
	Orders  orders.Service
	Tabby   TabbyPaymentClient
	Metrics *metrics.WebhookMetrics
	Logger  *logger.Logger
}

// Service verifies Tabby payment notifications and settles the matching order.
type Service struct {
	orders  orders.Service
	tabby   TabbyPaymentClient
	metrics *metrics.WebhookMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Tabby == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tabby client required")
	}
	return &Service{
		orders:  params.Orders,
		tabby:   params.Tabby,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// HandleEvent re-fetches the payment from Tabby, captures authorized ones and
// confirms the order. The webhook body alone is never trusted as proof of
// payment.
func (s *Service) HandleEvent(ctx context.Context, event *WebhookEvent) error {
	if event == nil || strings.TrimSpace(event.PaymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tabby payment id required")
	}

	start := time.Now()
	err := s.dispatch(ctx, event)
	s.metrics.ObserveDuration(providerLabel, time.Since(start))
	if err != nil {
		s.metrics.IncFailure(providerLabel)
		return err
	}
	s.metrics.IncProcessed(providerLabel)
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *WebhookEvent) error {
	payment, err := s.tabby.GetPayment(ctx, event.PaymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify tabby payment")
	}
	if payment.OrderRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tabby payment has no order reference")
	}

	switch payment.Status {
	case tabby.PaymentStatusAuthorized:
		if _, err := s.tabby.CapturePayment(ctx, payment.ID, payment.Amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture tabby payment")
		}
		return s.confirm(ctx, payment)
	case tabby.PaymentStatusClosed:
		// Already captured, a redelivery or an out-of-band capture.
		return s.confirm(ctx, payment)
	case tabby.PaymentStatusRejected, tabby.PaymentStatusExpired:
		return s.failByReference(ctx, payment.OrderRef)
	default:
		if s.logg != nil {
			s.logg.Warn(ctx, "tabby payment in non-actionable status")
		}
		return nil
	}
}

func (s *Service) confirm(ctx context.Context, payment *tabby.Payment) error {
	paymentID := payment.ID
	_, err := s.orders.ConfirmPayment(ctx, orders.ConfirmPaymentInput{
		OrderRef:          payment.OrderRef,
		ProviderPaymentID: &paymentID,
	})
	return err
}

func (s *Service) failByReference(ctx context.Context, orderRef string) error {
	order, err := s.orders.GetByRef(ctx, orderRef)
	if err != nil {
		return err
	}
	_, err = s.orders.FailOrder(ctx, order.ID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			return nil
		}
	}
	return err
}
