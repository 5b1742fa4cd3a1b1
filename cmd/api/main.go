package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/api"
	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/routes"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/cart/localcart"
	"github.com/angelmondragon/marketplace-backend/internal/checkout"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/reviews"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	stripewebhook "github.com/angelmondragon/marketplace-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	commerceMetrics := metrics.NewCommerceMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	storeRepo := stores.NewRepository(conn)
	productRepo := product.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	guestStorage, err := localcart.NewRedisStorage(redisClient, cfg.Cart.GuestTTL)
	if err != nil {
		return err
	}
	localStore, err := localcart.NewStore(guestStorage, logg)
	if err != nil {
		return err
	}
	cartSvc, err := cart.NewService(localStore, cartRepo, productRepo, dbClient, logg)
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		Cart:           cartSvc,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	productSvc, err := product.NewService(productRepo, storeRepo)
	if err != nil {
		return err
	}
	storeSvc, err := stores.NewService(storeRepo, dbClient, outboxSvc)
	if err != nil {
		return err
	}
	orderSvc, err := orders.NewService(orderRepo, dbClient, outboxSvc, storeRepo)
	if err != nil {
		return err
	}
	reviewSvc, err := reviews.NewService(reviews.NewRepository(conn), orderRepo)
	if err != nil {
		return err
	}
	userSvc, err := users.NewService(userRepo)
	if err != nil {
		return err
	}

	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Tx:       dbClient,
		Cart:     cartRepo,
		Products: productRepo,
		Buyers:   userRepo,
		Orders:   orderRepo,
		Outbox:   outboxSvc,
		Payments: stripeClient,
		Metrics:  commerceMetrics,
		Logger:   logg,
	}, checkout.Config{
		PublicOrigin:      cfg.Checkout.PublicOrigin,
		AllowedOrigins:    cfg.Checkout.AllowedOrigins,
		ShippingCountries: cfg.Stripe.ShippingCountries,
		SessionTTL:        cfg.Stripe.SessionTTL,
	})
	if err != nil {
		return err
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:            orderRepo,
		Inventory:         product.NewInventoryDecrementer(),
		Cart:              cartRepo,
		Outbox:            outboxSvc,
		TransactionRunner: dbClient,
		Metrics:           commerceMetrics,
		Logger:            logg,
	})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Stripe.WebhookDedupeTTL, "")
	if err != nil {
		return err
	}

	router := routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Sessions:       sessionManager,
		Idempotency:    redisClient,
		Limiter:        redisClient,
		Stripe:         stripeClient,
		WebhookGuard:   webhookGuard,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Services: routes.Services{
			Auth:          authSvc,
			Cart:          cartSvc,
			Products:      productSvc,
			Stores:        storeSvc,
			Orders:        orderSvc,
			Reviews:       reviewSvc,
			Users:         userSvc,
			Checkout:      checkoutSvc,
			StripeWebhook: webhookSvc,
		},
	})

	server := api.NewServer(cfg, router)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
