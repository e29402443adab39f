package stripewebhook

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgstripe "github.com/rvelez/storefront-backend/pkg/stripe"
)

// CheckoutSessionFetcher retrieves checkout sessions from Stripe so event
// handling acts on what the provider reports, not on the delivered payload.
type CheckoutSessionFetcher interface {
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type sessionFetcher struct{}

// NewSessionFetcher wraps the configured Stripe client for webhook handling.
func NewSessionFetcher(api *pkgstripe.Client) CheckoutSessionFetcher {
	if api == nil {
		return nil
	}
	return &sessionFetcher{}
}

func (f *sessionFetcher) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}
