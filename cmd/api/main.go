package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rvelez/storefront-backend/api/routes"
	"github.com/rvelez/storefront-backend/internal/cart"
	"github.com/rvelez/storefront-backend/internal/checkout"
	"github.com/rvelez/storefront-backend/internal/orders"
	"github.com/rvelez/storefront-backend/internal/products"
	"github.com/rvelez/storefront-backend/internal/recent"
	"github.com/rvelez/storefront-backend/internal/sessions"
	stripewebhook "github.com/rvelez/storefront-backend/internal/webhooks/stripe"
	tabbywebhook "github.com/rvelez/storefront-backend/internal/webhooks/tabby"
	"github.com/rvelez/storefront-backend/internal/wishlist"
	"github.com/rvelez/storefront-backend/pkg/config"
	"github.com/rvelez/storefront-backend/pkg/db"
	"github.com/rvelez/storefront-backend/pkg/logger"
	"github.com/rvelez/storefront-backend/pkg/metrics"
	"github.com/rvelez/storefront-backend/pkg/migrate"
	"github.com/rvelez/storefront-backend/pkg/outbox"
	"github.com/rvelez/storefront-backend/pkg/redis"
	"github.com/rvelez/storefront-backend/pkg/stripe"
	"github.com/rvelez/storefront-backend/pkg/tabby"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	tabbyClient, err := tabby.NewClient(cfg.Tabby.APIKey, cfg.Tabby.MerchantID,
		tabby.WithBaseURL(cfg.Tabby.BaseURL),
		tabby.WithWebhookSecret(cfg.Tabby.WebhookSecret),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create tabby client", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	productRepo := products.NewRepository(gdb)
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)

	cartService, err := cart.NewService(cart.ServiceParams{
		CartRepo:    cart.NewRepository(gdb),
		ProductRepo: productRepo,
		Tx:          dbClient,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	wishlistService, err := wishlist.NewService(wishlist.ServiceParams{
		WishlistRepo: wishlist.NewRepository(gdb),
		ProductRepo:  productRepo,
		Tx:           dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wishlist service", err)
		os.Exit(1)
	}

	recentService, err := recent.NewService(recent.ServiceParams{
		RecentRepo:  recent.NewRepository(gdb),
		ProductRepo: productRepo,
		Tx:          dbClient,
		MaxItems:    cfg.Sessions.RecentMaxItems,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recently-viewed service", err)
		os.Exit(1)
	}

	sessionService, err := sessions.NewService(sessions.ServiceParams{
		Repo:           sessions.NewRepository(gdb),
		TTL:            cfg.Sessions.TTL(),
		CartMerger:     cartService,
		WishlistMerger: wishlistService,
		RecentMerger:   recentService,
		Tx:             dbClient,
		Outbox:         outboxService,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(gdb),
		Tx:     dbClient,
		Outbox: outboxService,
		Stock:  productRepo,
		Carts:  cartService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:  cartService,
		Orders: orderService,
		Stripe: checkout.NewStripeClient(stripeClient),
		Tabby:  tabbyClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:  orderService,
		Stripe:  stripewebhook.NewSessionFetcher(stripeClient),
		Metrics: webhookMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	tabbyWebhookService, err := tabbywebhook.NewService(tabbywebhook.ServiceParams{
		Orders:  orderService,
		Tabby:   tabbyClient,
		Metrics: webhookMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create tabby webhook service", err)
		os.Exit(1)
	}

	stripeGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}
	tabbyGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "tabby-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create tabby webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			Sessions:             sessionService,
			Cart:                 cartService,
			Wishlist:             wishlistService,
			Recent:               recentService,
			Checkout:             checkoutService,
			Orders:               orderService,
			StripeWebhookService: stripeWebhookService,
			TabbyWebhookService:  tabbyWebhookService,
			StripeSigning:        stripeClient,
			TabbySigning:         tabbyClient,
			StripeGuard:          stripeGuard,
			TabbyGuard:           tabbyGuard,
			WebhookMetrics:       webhookMetrics,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
