package controllers

import (
	"net/http"

	"github.com/rvelez/storefront-backend/api/middleware"
	"github.com/rvelez/storefront-backend/api/responses"
	"github.com/rvelez/storefront-backend/api/validators"
	checkoutsvc "github.com/rvelez/storefront-backend/internal/checkout"
	"github.com/rvelez/storefront-backend/pkg/enums"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type startCheckoutRequest struct {
	Provider       string               `json:"provider" validate:"required,oneof=stripe tabby"`
	BillingDetails types.BillingDetails `json:"billing_details" validate:"required"`
	SuccessURL     string               `json:"success_url" validate:"required,url"`
	CancelURL      string               `json:"cancel_url" validate:"required,url"`
}

// StartCheckout freezes the cart into an order and returns the provider
// redirect URL.
func StartCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := middleware.IdentityFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload startCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartCheckout(r.Context(), owner, checkoutsvc.StartCheckoutInput{
			Provider:       enums.PaymentProvider(payload.Provider),
			BillingDetails: payload.BillingDetails,
			SuccessURL:     payload.SuccessURL,
			CancelURL:      payload.CancelURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
