package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/rvelez/storefront-backend/internal/orders"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
)

type stubOrders struct {
	orders.Service
	confirmed []orders.ConfirmPaymentInput
	failed    []uuid.UUID
	cancelled []uuid.UUID
	order     orders.OrderDTO
	failErr   error
}

func (s *stubOrders) ConfirmPayment(_ context.Context, input orders.ConfirmPaymentInput) (orders.OrderDTO, error) {
	s.confirmed = append(s.confirmed, input)
	return s.order, nil
}

func (s *stubOrders) GetByRef(_ context.Context, orderRef string) (orders.OrderDTO, error) {
	if orderRef != s.order.OrderRef {
		return orders.OrderDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrders) FailOrder(_ context.Context, orderID uuid.UUID) (orders.OrderDTO, error) {
	if s.failErr != nil {
		return orders.OrderDTO{}, s.failErr
	}
	s.failed = append(s.failed, orderID)
	return s.order, nil
}

func (s *stubOrders) CancelOrder(_ context.Context, orderID uuid.UUID) (orders.OrderDTO, error) {
	s.cancelled = append(s.cancelled, orderID)
	return s.order, nil
}

type stubSessionFetcher struct {
	session *stripe.CheckoutSession
	err     error
	fetched []string
}

func (s *stubSessionFetcher) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	s.fetched = append(s.fetched, id)
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func checkoutEvent(t *testing.T, eventType stripe.EventType, orderRef string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":                  "cs_test_1",
		"client_reference_id": orderRef,
		"payment_intent":      "pi_test_1",
	})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   fmt.Sprintf("evt_%s", uuid.NewString()),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func paidSession(orderRef string) *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:                "cs_test_1",
		ClientReferenceID: orderRef,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		PaymentIntent:     &stripe.PaymentIntent{ID: "pi_test_1"},
	}
}

func newTestService(t *testing.T) (*Service, *stubOrders, *stubSessionFetcher) {
	t.Helper()
	ordersStub := &stubOrders{order: orders.OrderDTO{
		ID:       uuid.New(),
		OrderRef: "SF-TEST01",
		Status:   enums.OrderStatusPending,
	}}
	fetcher := &stubSessionFetcher{session: paidSession("SF-TEST01")}
	svc, err := NewService(ServiceParams{Orders: ordersStub, Stripe: fetcher})
	require.NoError(t, err)
	return svc, ordersStub, fetcher
}

func TestHandleEventConfirmsCompletedCheckout(t *testing.T) {
	svc, ordersStub, fetcher := newTestService(t)

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, "SF-TEST01"))
	require.NoError(t, err)

	assert.Equal(t, []string{"cs_test_1"}, fetcher.fetched)
	require.Len(t, ordersStub.confirmed, 1)
	input := ordersStub.confirmed[0]
	assert.Equal(t, "SF-TEST01", input.OrderRef)
	require.NotNil(t, input.ProviderSessionID)
	assert.Equal(t, "cs_test_1", *input.ProviderSessionID)
	require.NotNil(t, input.ProviderPaymentID)
	assert.Equal(t, "pi_test_1", *input.ProviderPaymentID)
}

func TestHandleEventAwaitsSettlementForUnpaidSession(t *testing.T) {
	svc, ordersStub, fetcher := newTestService(t)
	fetcher.session.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, "SF-TEST01"))
	require.NoError(t, err)

	assert.Equal(t, []string{"cs_test_1"}, fetcher.fetched)
	assert.Empty(t, ordersStub.confirmed)
}

func TestHandleEventSurfacesSessionFetchFailure(t *testing.T) {
	svc, ordersStub, fetcher := newTestService(t)
	fetcher.err = fmt.Errorf("stripe unavailable")

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, "SF-TEST01"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.Empty(t, ordersStub.confirmed)
}

func TestHandleEventFailsOrderOnAsyncPaymentFailure(t *testing.T) {
	svc, ordersStub, _ := newTestService(t)

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentFailed, "SF-TEST01"))
	require.NoError(t, err)

	require.Len(t, ordersStub.failed, 1)
	assert.Equal(t, ordersStub.order.ID, ordersStub.failed[0])
	assert.Empty(t, ordersStub.confirmed)
}

func TestHandleEventCancelsExpiredCheckout(t *testing.T) {
	svc, ordersStub, _ := newTestService(t)

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionExpired, "SF-TEST01"))
	require.NoError(t, err)
	require.Len(t, ordersStub.cancelled, 1)
}

func TestHandleEventAcknowledgesSettledOrders(t *testing.T) {
	svc, ordersStub, _ := newTestService(t)
	ordersStub.failErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentFailed, "SF-TEST01"))
	require.NoError(t, err)
	assert.Empty(t, ordersStub.failed)
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	svc, ordersStub, _ := newTestService(t)

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventType("customer.created"), "SF-TEST01"))
	require.NoError(t, err)
	assert.Empty(t, ordersStub.confirmed)
	assert.Empty(t, ordersStub.failed)
	assert.Empty(t, ordersStub.cancelled)
}

func TestHandleEventRejectsMissingReference(t *testing.T) {
	svc, _, fetcher := newTestService(t)
	fetcher.session.ClientReferenceID = ""

	err := svc.HandleEvent(context.Background(), checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, ""))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

type fakeIdempotencyStore struct {
	keys map[string]string
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	return f.keys[key], nil
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sf:idempotency:%s:%s", scope, id)
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestIdempotencyGuardMarksAndReleases(t *testing.T) {
	guard, err := NewIdempotencyGuard(&fakeIdempotencyStore{keys: map[string]string{}}, time.Hour, "stripe")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(context.Background(), "evt_1"))
	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, 0, "stripe")
	require.Error(t, err)
}
