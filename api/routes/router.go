package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/access"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/marketplace-backend/internal/checkout"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	products "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/reviews"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// RateLimiter counts requests in fixed windows.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// WebhookGuard claims Stripe event ids so redeliveries are processed once.
type WebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// SigningSecretSource exposes the Stripe webhook signing secret.
type SigningSecretSource interface {
	SigningSecret() string
}

// Services are the domain services served over HTTP.
type Services struct {
	Auth          auth.Service
	Cart          cart.Service
	Products      products.Service
	Stores        stores.Service
	Orders        orders.Service
	Reviews       reviews.Service
	Users         users.Service
	Checkout      checkoutsvc.Service
	StripeWebhook webhookcontrollers.StripeWebhookService
}

// Dependencies bundles everything NewRouter wires.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Sessions session.AccessSessionChecker

	Idempotency redis.IdempotencyStore
	Limiter     RateLimiter

	Stripe       SigningSecretSource
	WebhookGuard WebhookGuard

	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler

	Services Services
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	svc := deps.Services

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(corsOrigins(cfg.Checkout)),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, deps.Stripe, deps.WebhookGuard, logg))

	policy := access.DefaultPolicy()
	if cfg.App.LoginPath != "" {
		policy.LoginPath = cfg.App.LoginPath
	}
	guestSession := middleware.GuestSession(cfg.Cart.GuestTTL, cfg.App.IsProd())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Access(policy, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(guestSession, middleware.LoginRateLimit("register", cfg.LoginLimit, deps.Limiter, logg)).
				Post("/register", controllers.AuthRegister(svc.Auth, logg))
			r.With(guestSession, middleware.LoginRateLimit("login", cfg.LoginLimit, deps.Limiter, logg)).
				Post("/login", controllers.AuthLogin(svc.Auth, logg))
			r.With(guestSession).Post("/logout", controllers.AuthLogout(svc.Auth, svc.Cart, logg))
		})

		r.Get("/products", controllers.ProductList(svc.Products, logg))
		r.Get("/products/{slug}", controllers.ProductDetail(svc.Products, logg))
		r.Get("/categories", controllers.CategoryList(svc.Products, logg))
		r.Get("/stores", controllers.StoreList(svc.Stores, logg))
		r.Get("/stores/{slug}", controllers.StoreDetail(svc.Stores, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(guestSession)
			r.Get("/", cartcontrollers.CartFetch(svc.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(svc.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(svc.Cart, logg))
			r.Patch("/items/{productId}", cartcontrollers.CartUpdateItem(svc.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(svc.Cart, logg))
			r.Post("/merge", cartcontrollers.CartMerge(svc.Cart, logg))
		})

		r.Post("/checkout", controllers.Checkout(svc.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
		})

		r.Post("/reviews", controllers.ReviewCreate(svc.Reviews, logg))

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", controllers.ProfileGet(svc.Users, logg))
			r.Patch("/", controllers.ProfileUpdate(svc.Users, logg))
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.UserRoleStoreOwner), string(enums.UserRoleAdmin)))
			r.Get("/store", controllers.DashboardStore(svc.Stores, logg))
			r.Put("/store", controllers.DashboardStoreUpsert(svc.Stores, logg))
			r.Get("/products", controllers.DashboardProducts(svc.Products, logg))
			r.Post("/products", controllers.DashboardCreateProduct(svc.Products, logg))
			r.Patch("/products/{productId}", controllers.DashboardUpdateProduct(svc.Products, logg))
			r.Get("/orders", ordercontrollers.StoreOrders(svc.Orders, logg))
			r.Patch("/orders/{orderId}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.UserRoleAdmin)))
			r.Get("/stores", controllers.AdminStoreList(svc.Stores, logg))
			r.Patch("/stores/{storeId}/status", controllers.AdminStoreSetStatus(svc.Stores, logg))
			r.Get("/reviews", controllers.AdminReviewList(svc.Reviews, logg))
			r.Patch("/reviews/{reviewId}", controllers.AdminReviewModerate(svc.Reviews, logg))
			r.Get("/users", controllers.AdminUserList(svc.Users, logg))
		})
	})

	return r
}

func corsOrigins(cfg config.CheckoutConfig) []string {
	origins := make([]string, 0, len(cfg.AllowedOrigins)+1)
	if cfg.PublicOrigin != "" {
		origins = append(origins, cfg.PublicOrigin)
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin != "" && origin != cfg.PublicOrigin {
			origins = append(origins, origin)
		}
	}
	return origins
}
