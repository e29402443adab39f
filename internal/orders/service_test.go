package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/outbox"
	"github.com/rvelez/storefront-backend/pkg/pagination"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) countByType(eventType enums.OutboxEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

type stubStock struct {
	mu       sync.Mutex
	reduced  map[uuid.UUID]int
	failWith error
}

func (s *stubStock) ReduceVariantStock(ctx context.Context, variantID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if s.reduced == nil {
		s.reduced = make(map[uuid.UUID]int)
	}
	s.reduced[variantID] += qty
	return nil
}

type stubCarts struct {
	mu           sync.Mutex
	cleared      []string
	clearedUsers []uuid.UUID
}

func (s *stubCarts) ClearBySessionToken(ctx context.Context, sessionToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, sessionToken)
	return nil
}

func (s *stubCarts) ClearCart(ctx context.Context, owner types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedUsers = append(s.clearedUsers, owner.UserID)
	return nil
}

func newOrderService(t *testing.T, db *gorm.DB) (Service, *stubOutbox, *stubStock, *stubCarts) {
	t.Helper()

	events := &stubOutbox{}
	stock := &stubStock{}
	carts := &stubCarts{}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Tx:     &testTxRunner{db: db},
		Outbox: events,
		Stock:  stock,
		Carts:  carts,
	})
	require.NoError(t, err)
	return svc, events, stock, carts
}

func createPendingOrder(t *testing.T, svc Service, sessionToken string, variantID uuid.UUID) OrderDTO {
	t.Helper()

	dto, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		SessionToken: &sessionToken,
		Provider:     enums.PaymentProviderStripe,
		Currency:     enums.CurrencyUSD,
		Lines: []LineSnapshot{
			{
				ProductID:      uuid.New(),
				ProductTitle:   "Snapshot Tee",
				VariantIDs:     []uuid.UUID{variantID},
				Quantity:       2,
				UnitPriceCents: 2500,
			},
		},
	})
	require.NoError(t, err)
	return dto
}

func TestCreateOrderFreezesSnapshotAndEmitsEvent(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, events, _, _ := newOrderService(t, db)

	dto := createPendingOrder(t, svc, "tok-create", uuid.New())

	assert.Equal(t, enums.OrderStatusPending, dto.Status)
	assert.NotEmpty(t, dto.OrderRef)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, "Snapshot Tee", dto.Items[0].ProductTitle)
	assert.Equal(t, 5000, dto.Items[0].TotalCents)
	assert.Equal(t, 5000, dto.SubtotalCents)
	assert.Equal(t, 5000, dto.TotalCents)
	assert.Equal(t, 1, events.countByType(enums.EventOrderCreated))
}

func TestCreateOrderValidation(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, _, _, _ := newOrderService(t, db)
	ctx := context.Background()
	token := "tok"

	_, err := svc.CreateOrder(ctx, CreateOrderInput{SessionToken: &token, Provider: enums.PaymentProviderStripe})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = svc.CreateOrder(ctx, CreateOrderInput{
		Provider: enums.PaymentProviderStripe,
		Lines:    []LineSnapshot{{ProductID: uuid.New(), Quantity: 1, UnitPriceCents: 100}},
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestConfirmPaymentAppliesSideEffectsExactlyOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, events, stock, carts := newOrderService(t, db)
	ctx := context.Background()
	variantID := uuid.New()

	dto := createPendingOrder(t, svc, "tok-pay", variantID)
	paymentID := "pi_123"

	confirmed, err := svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: dto.OrderRef, ProviderPaymentID: &paymentID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, confirmed.Status)
	assert.NotNil(t, confirmed.PaidAt)
	assert.Equal(t, 2, stock.reduced[variantID])
	assert.Equal(t, []string{"tok-pay"}, carts.cleared)
	assert.Equal(t, 1, events.countByType(enums.EventOrderPaid))

	// A duplicate delivery must ack success without re-running side effects.
	again, err := svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: dto.OrderRef, ProviderPaymentID: &paymentID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, again.Status)
	assert.Equal(t, 2, stock.reduced[variantID])
	assert.Len(t, carts.cleared, 1)
	assert.Equal(t, 1, events.countByType(enums.EventOrderPaid))
}

func TestConfirmPaymentClearsUserCartForUserOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, _, _, carts := newOrderService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	dto, err := svc.CreateOrder(ctx, CreateOrderInput{
		UserID:   &userID,
		Provider: enums.PaymentProviderStripe,
		Currency: enums.CurrencyUSD,
		Lines: []LineSnapshot{
			{
				ProductID:      uuid.New(),
				ProductTitle:   "Snapshot Tee",
				VariantIDs:     []uuid.UUID{uuid.New()},
				Quantity:       1,
				UnitPriceCents: 2500,
			},
		},
	})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: dto.OrderRef})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, confirmed.Status)
	assert.Empty(t, carts.cleared)
	require.Len(t, carts.clearedUsers, 1)
	assert.Equal(t, userID, carts.clearedUsers[0])
}

func TestConfirmPaymentFallsBackToProviderSessionID(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, _, _, _ := newOrderService(t, db)
	ctx := context.Background()

	dto := createPendingOrder(t, svc, "tok-fallback", uuid.New())
	sessionID := "cs_789"
	require.NoError(t, svc.AttachProviderSession(ctx, dto.ID, sessionID))

	confirmed, err := svc.ConfirmPayment(ctx, ConfirmPaymentInput{ProviderSessionID: &sessionID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, confirmed.Status)

	_, err = svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: "SF-UNKNOWN"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestStockFailureDoesNotUnwindPayment(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, events, stock, carts := newOrderService(t, db)
	stock.failWith = assert.AnError
	ctx := context.Background()

	dto := createPendingOrder(t, svc, "tok-stockfail", uuid.New())

	confirmed, err := svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: dto.OrderRef})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, confirmed.Status)
	// Cart clearing still happens even when stock reduction fails.
	assert.Len(t, carts.cleared, 1)
	assert.Equal(t, 1, events.countByType(enums.EventOrderPaid))
}

func TestStateMachineTransitions(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, events, _, _ := newOrderService(t, db)
	ctx := context.Background()

	pending := createPendingOrder(t, svc, "tok-fail", uuid.New())
	failed, err := svc.FailOrder(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, failed.Status)
	assert.NotNil(t, failed.FailedAt)
	assert.Equal(t, 1, events.countByType(enums.EventOrderFailed))

	// Terminal states never move again.
	_, err = svc.CancelOrder(ctx, pending.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	cancelMe := createPendingOrder(t, svc, "tok-cancel", uuid.New())
	cancelled, err := svc.CancelOrder(ctx, cancelMe.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	completeMe := createPendingOrder(t, svc, "tok-complete", uuid.New())
	// Completing straight from pending is rejected.
	_, err = svc.CompleteOrder(ctx, completeMe.ID)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	_, err = svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderRef: completeMe.OrderRef})
	require.NoError(t, err)
	completed, err := svc.CompleteOrder(ctx, completeMe.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Equal(t, 1, events.countByType(enums.EventOrderCompleted))
}

func TestTransitionIsIdempotentOnSameStatus(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, events, _, _ := newOrderService(t, db)
	ctx := context.Background()

	dto := createPendingOrder(t, svc, "tok-idem", uuid.New())
	_, err := svc.CancelOrder(ctx, dto.ID)
	require.NoError(t, err)

	again, err := svc.CancelOrder(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, again.Status)
	assert.Equal(t, 1, events.countByType(enums.EventOrderCancelled))
}

func TestAdminUpdateStatusPaidRunsConfirmationPath(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, events, stock, carts := newOrderService(t, db)
	ctx := context.Background()
	variantID := uuid.New()

	dto := createPendingOrder(t, svc, "tok-admin", variantID)

	updated, err := svc.AdminUpdateStatus(ctx, dto.ID, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.Equal(t, 2, stock.reduced[variantID])
	assert.Len(t, carts.cleared, 1)
	assert.Equal(t, 1, events.countByType(enums.EventOrderPaid))

	_, err = svc.AdminUpdateStatus(ctx, dto.ID, enums.OrderStatus("bogus"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestGetByRefReturnsPersistedSnapshot(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, _, _, _ := newOrderService(t, db)
	ctx := context.Background()

	dto := createPendingOrder(t, svc, "tok-frozen", uuid.New())

	reloaded, err := svc.GetByRef(ctx, dto.OrderRef)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, "Snapshot Tee", reloaded.Items[0].ProductTitle)
	assert.Equal(t, 2500, reloaded.Items[0].UnitPriceCents)
}

func TestAdminListPassesThrough(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, _, _, _ := newOrderService(t, db)
	ctx := context.Background()

	createPendingOrder(t, svc, "tok-l1", uuid.New())
	createPendingOrder(t, svc, "tok-l2", uuid.New())

	list, err := svc.AdminList(ctx, pagination.Params{}, ListFilters{})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 2)
}
