package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/rvelez/storefront-backend/internal/orders"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/metrics"
)

const providerLabel = "stripe"

type ServiceParams struct {
	Orders  orders.Service
	Stripe  CheckoutSessionFetcher
	Metrics *metrics.WebhookMetrics
	Logger  *logger.Logger
}

// Service translates Stripe checkout events into order transitions.
type Service struct {
	orders  orders.Service
	stripe  CheckoutSessionFetcher
	metrics *metrics.WebhookMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &Service{
		orders:  params.Orders,
		stripe:  params.Stripe,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// HandleEvent processes Stripe checkout lifecycle events. Unknown event
// types are acknowledged without action so Stripe stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
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

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeCheckoutSession(event)
		if err != nil {
			return err
		}
		return s.confirmFromProvider(ctx, session.ID)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeCheckoutSession(event)
		if err != nil {
			return err
		}
		return s.failByReference(ctx, session.ClientReferenceID)
	case stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeCheckoutSession(event)
		if err != nil {
			return err
		}
		return s.cancelByReference(ctx, session.ClientReferenceID)
	default:
		return nil
	}
}

// confirmFromProvider re-fetches the checkout session and only moves the
// order to paid when Stripe itself reports the payment settled. Completed
// events for async payment methods arrive before funds clear; those are
// acknowledged and left for the async_payment_succeeded delivery.
func (s *Service) confirmFromProvider(ctx context.Context, sessionID string) error {
	session, err := s.stripe.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe checkout session")
	}
	if session == nil || session.ClientReferenceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client reference id missing")
	}
	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid,
		stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
	default:
		if s.logg != nil {
			s.logg.Warn(ctx, "stripe checkout session not paid, awaiting settlement")
		}
		return nil
	}
	input := orders.ConfirmPaymentInput{
		OrderRef:          session.ClientReferenceID,
		ProviderSessionID: &session.ID,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		input.ProviderPaymentID = &session.PaymentIntent.ID
	}
	_, err = s.orders.ConfirmPayment(ctx, input)
	return err
}

func (s *Service) failByReference(ctx context.Context, orderRef string) error {
	if orderRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client reference id missing")
	}
	order, err := s.orders.GetByRef(ctx, orderRef)
	if err != nil {
		return err
	}
	_, err = s.orders.FailOrder(ctx, order.ID)
	return s.ackStateConflict(ctx, err)
}

func (s *Service) cancelByReference(ctx context.Context, orderRef string) error {
	if orderRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client reference id missing")
	}
	order, err := s.orders.GetByRef(ctx, orderRef)
	if err != nil {
		return err
	}
	_, err = s.orders.CancelOrder(ctx, order.ID)
	return s.ackStateConflict(ctx, err)
}

// ackStateConflict swallows transitions the order already moved past, such
// as an expiry notice arriving after payment. Returning an error here would
// only make the provider redeliver an event that can never apply.
func (s *Service) ackStateConflict(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
		if s.logg != nil {
			s.logg.Warn(ctx, "stripe event skipped, order already settled")
		}
		return nil
	}
	return err
}

func decodeCheckoutSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}
