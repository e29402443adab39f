package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rvelez/storefront-backend/api/middleware"
	"github.com/rvelez/storefront-backend/api/responses"
	"github.com/rvelez/storefront-backend/api/validators"
	recentsvc "github.com/rvelez/storefront-backend/internal/recent"
	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
	"github.com/rvelez/storefront-backend/pkg/logger"
)

// RecentlyViewed returns the caller's most recent product views.
func RecentlyViewed(svc recentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recently viewed service unavailable"))
			return
		}

		owner, err := middleware.IdentityFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views, err := svc.GetRecent(r.Context(), owner, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}

type trackViewRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

// TrackView records a product view for the caller.
func TrackView(svc recentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recently viewed service unavailable"))
			return
		}

		owner, err := middleware.IdentityFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload trackViewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.TrackView(r.Context(), owner, payload.ProductID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "tracked"})
	}
}
