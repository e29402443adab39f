package checkout

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/rvelez/storefront-backend/internal/cart"
	"github.com/rvelez/storefront-backend/internal/orders"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/tabby"
	"github.com/rvelez/storefront-backend/pkg/types"
)

// TabbyCheckoutClient exposes the Tabby operations the checkout service needs.
type TabbyCheckoutClient interface {
	CreateCheckout(ctx context.Context, req tabby.CheckoutRequest) (*tabby.CheckoutSession, error)
}

// StartCheckoutInput captures a checkout request for the owner's cart.
type StartCheckoutInput struct {
	Provider       enums.PaymentProvider
	BillingDetails types.BillingDetails
	SuccessURL     string
	CancelURL      string
}

// CheckoutResultDTO is the created order plus where to send the shopper.
type CheckoutResultDTO struct {
	Order       orders.OrderDTO `json:"order"`
	RedirectURL string          `json:"redirect_url"`
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Carts  cart.Service
	Orders orders.Service
	Stripe StripeCheckoutClient
	Tabby  TabbyCheckoutClient
	Logger *logger.Logger
}

// Service turns a cart into a pending order with a provider redirect.
type Service interface {
	StartCheckout(ctx context.Context, owner types.Identity, input StartCheckoutInput) (CheckoutResultDTO, error)
}

type service struct {
	carts  cart.Service
	orders orders.Service
	stripe StripeCheckoutClient
	tabby  TabbyCheckoutClient
	logg   *logger.Logger
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart service is required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order service is required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe client is required")
	}
	if params.Tabby == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tabby client is required")
	}
	return &service{
		carts:  params.Carts,
		orders: params.Orders,
		stripe: params.Stripe,
		tabby:  params.Tabby,
		logg:   params.Logger,
	}, nil
}

// StartCheckout freezes the owner's cart into a pending order and opens the
// provider checkout session the shopper is redirected to. The cart itself is
// only cleared later, when the payment webhook confirms capture.
func (s *service) StartCheckout(ctx context.Context, owner types.Identity, input StartCheckoutInput) (CheckoutResultDTO, error) {
	if err := owner.Validate(); err != nil {
		return CheckoutResultDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout owner")
	}
	if !input.Provider.IsValid() {
		return CheckoutResultDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "payment provider is required")
	}

	cartDTO, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return CheckoutResultDTO{}, err
	}
	if len(cartDTO.Items) == 0 {
		return CheckoutResultDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	orderInput := orders.CreateOrderInput{
		Provider:       input.Provider,
		Currency:       cartDTO.Currency,
		BillingDetails: &input.BillingDetails,
	}
	if owner.IsUser() {
		userID := owner.UserID
		orderInput.UserID = &userID
	} else {
		token := owner.Token
		orderInput.SessionToken = &token
	}
	for _, item := range cartDTO.Items {
		orderInput.Lines = append(orderInput.Lines, orders.LineSnapshot{
			ProductID:      item.ProductID,
			ProductTitle:   item.Title,
			VariantIDs:     item.VariantIDs,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	order, err := s.orders.CreateOrder(ctx, orderInput)
	if err != nil {
		return CheckoutResultDTO{}, err
	}

	sessionID, redirectURL, err := s.openProviderSession(ctx, order, input)
	if err != nil {
		// Leave the order pending; the shopper can retry and a stale
		// pending order is eventually cancelled by the back office.
		return CheckoutResultDTO{}, err
	}
	if err := s.orders.AttachProviderSession(ctx, order.ID, sessionID); err != nil {
		return CheckoutResultDTO{}, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout session opened")
	}
	return CheckoutResultDTO{Order: order, RedirectURL: redirectURL}, nil
}

func (s *service) openProviderSession(ctx context.Context, order orders.OrderDTO, input StartCheckoutInput) (string, string, error) {
	switch input.Provider {
	case enums.PaymentProviderStripe:
		return s.openStripeSession(ctx, order, input)
	case enums.PaymentProviderTabby:
		return s.openTabbySession(ctx, order, input)
	default:
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
}

func (s *service) openStripeSession(ctx context.Context, order orders.OrderDTO, input StartCheckoutInput) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(input.SuccessURL),
		CancelURL:         stripe.String(input.CancelURL),
		ClientReferenceID: stripe.String(order.OrderRef),
	}
	for _, item := range order.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(order.Currency)),
				UnitAmount: stripe.Int64(int64(item.UnitPriceCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.ProductTitle),
				},
			},
		})
	}
	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}
	return session.ID, session.URL, nil
}

func (s *service) openTabbySession(ctx context.Context, order orders.OrderDTO, input StartCheckoutInput) (string, string, error) {
	req := tabby.CheckoutRequest{
		Amount:     decimal.New(int64(order.TotalCents), -2),
		Currency:   string(order.Currency),
		OrderRef:   order.OrderRef,
		SuccessURL: input.SuccessURL,
		CancelURL:  input.CancelURL,
		FailureURL: input.CancelURL,
		Buyer: tabby.Buyer{
			Name:  input.BillingDetails.Name,
			Email: input.BillingDetails.Email,
			Phone: input.BillingDetails.Phone,
		},
	}
	for _, item := range order.Items {
		req.Lines = append(req.Lines, tabby.OrderLine{
			Title:     item.ProductTitle,
			Quantity:  item.Quantity,
			UnitPrice: decimal.New(int64(item.UnitPriceCents), -2),
		})
	}
	session, err := s.tabby.CreateCheckout(ctx, req)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tabby checkout session")
	}
	return session.SessionID, session.WebURL, nil
}
