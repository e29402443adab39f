package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rvelez/storefront-backend/api/controllers"
	webhookcontrollers "github.com/rvelez/storefront-backend/api/controllers/webhooks"
	"github.com/rvelez/storefront-backend/api/middleware"
	cartsvc "github.com/rvelez/storefront-backend/internal/cart"
	checkoutsvc "github.com/rvelez/storefront-backend/internal/checkout"
	ordersvc "github.com/rvelez/storefront-backend/internal/orders"
	recentsvc "github.com/rvelez/storefront-backend/internal/recent"
	sessionsvc "github.com/rvelez/storefront-backend/internal/sessions"
	wishlistsvc "github.com/rvelez/storefront-backend/internal/wishlist"
	stripewebhook "github.com/rvelez/storefront-backend/internal/webhooks/stripe"
	"github.com/rvelez/storefront-backend/pkg/config"
	"github.com/rvelez/storefront-backend/pkg/enums"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/metrics"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Sessions sessionsvc.Service
	Cart     cartsvc.Service
	Wishlist wishlistsvc.Service
	Recent   recentsvc.Service
	Checkout checkoutsvc.Service
	Orders   ordersvc.Service

	StripeWebhookService webhookcontrollers.StripeWebhookService
	TabbyWebhookService  webhookcontrollers.TabbyWebhookService
	StripeSigning        interface{ SigningSecret() string }
	TabbySigning         interface{ WebhookSecret() string }
	StripeGuard          *stripewebhook.IdempotencyGuard
	TabbyGuard           *stripewebhook.IdempotencyGuard
	WebhookMetrics       *metrics.WebhookMetrics
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhookService, params.StripeSigning, params.StripeGuard, params.WebhookMetrics, logg))
		r.Post("/tabby", webhookcontrollers.TabbyWebhook(params.TabbyWebhookService, params.TabbySigning, params.TabbyGuard, params.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.Session(middleware.SessionParams{
			Sessions:     params.Sessions,
			CookieTTL:    cfg.Sessions.TTL(),
			SecureCookie: cfg.App.IsProd(),
			Logger:       logg,
		}))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.Session(params.Sessions, logg))
			r.Post("/identify", controllers.SessionIdentify(params.Sessions, logg))
			r.Post("/logout", controllers.SessionLogout(params.Sessions, cfg.Sessions.TTL(), cfg.App.IsProd(), logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.Cart(params.Cart, logg))
			r.Delete("/", controllers.CartClear(params.Cart, logg))
			r.Post("/items", controllers.CartAddItem(params.Cart, logg))
			r.Put("/items", controllers.CartUpdateItem(params.Cart, logg))
			r.Delete("/items", controllers.CartRemoveItem(params.Cart, logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.Wishlist(params.Wishlist, logg))
			r.Delete("/", controllers.WishlistClear(params.Wishlist, logg))
			r.Post("/items", controllers.WishlistAddItem(params.Wishlist, logg))
			r.Delete("/items", controllers.WishlistRemoveItem(params.Wishlist, logg))
		})

		r.Route("/recently-viewed", func(r chi.Router) {
			r.Get("/", controllers.RecentlyViewed(params.Recent, logg))
			r.Post("/", controllers.TrackView(params.Recent, logg))
		})

		r.Post("/checkout", controllers.StartCheckout(params.Checkout, logg))
		r.Get("/orders/{orderRef}", controllers.Order(params.Orders, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrders(params.Orders, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(params.Orders, logg))
			r.Patch("/{orderId}/status", controllers.AdminUpdateOrderStatus(params.Orders, logg))
		})
	})

	return r
}
