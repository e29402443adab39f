package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rvelez/storefront-backend/api/responses"
	ordersvc "github.com/rvelez/storefront-backend/internal/orders"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
)

// Order returns an order by its public reference. Order refs are random and
// serve as the capability to read the confirmation page after redirect.
func Order(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderRef := strings.TrimSpace(chi.URLParam(r, "orderRef"))
		if orderRef == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order ref is required"))
			return
		}

		order, err := svc.GetByRef(r.Context(), orderRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
