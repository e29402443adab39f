package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvelez/storefront-backend/api/middleware"
	cartsvc "github.com/rvelez/storefront-backend/internal/cart"
	sessionsvc "github.com/rvelez/storefront-backend/internal/sessions"
	"github.com/rvelez/storefront-backend/pkg/config"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/types"
)

type stubSessions struct {
	sessionsvc.Service
}

func (s *stubSessions) Ensure(_ context.Context, token string, _ sessionsvc.Metadata) (sessionsvc.SessionDTO, error) {
	if token == "" {
		token = "tok-router"
	}
	return sessionsvc.SessionDTO{Token: token, Status: enums.SessionStatusActive}, nil
}

type stubCart struct {
	cartsvc.Service
}

func (s *stubCart) GetCart(_ context.Context, _ types.Identity) (cartsvc.CartDTO, error) {
	return cartsvc.CartDTO{Currency: enums.CurrencyUSD, Items: []cartsvc.CartItemDTO{}}, nil
}

func testRouter() http.Handler {
	return NewRouter(RouterParams{
		Config: &config.Config{
			App: config.AppConfig{Env: "test", Port: "8080"},
			JWT: config.JWTConfig{Secret: "test-secret", Issuer: "storefront-test", ExpirationMinutes: 15},
		},
		Sessions: &stubSessions{},
		Cart:     &stubCart{},
	})
}

func TestRouterHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Storefront-Env"))
}

func TestRouterStorefrontRoutesCarrySessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.Equal(t, "tok-router", cookies[0].Value)
}

func TestRouterAdminRequiresBearerToken(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
