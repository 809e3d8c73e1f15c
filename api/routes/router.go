package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kapehan/kapehan-backend/api/controllers"
	"github.com/kapehan/kapehan-backend/api/middleware"
	authsvc "github.com/kapehan/kapehan-backend/internal/auth"
	cartsvc "github.com/kapehan/kapehan-backend/internal/cart"
	catalogsvc "github.com/kapehan/kapehan-backend/internal/catalog"
	checkoutsvc "github.com/kapehan/kapehan-backend/internal/checkout"
	ordersvc "github.com/kapehan/kapehan-backend/internal/orders"
	paymentssvc "github.com/kapehan/kapehan-backend/internal/payments"
	"github.com/kapehan/kapehan-backend/pkg/auth/session"
	"github.com/kapehan/kapehan-backend/pkg/config"
	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	"github.com/kapehan/kapehan-backend/pkg/logger"
	"github.com/kapehan/kapehan-backend/pkg/metrics"
	"github.com/kapehan/kapehan-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sessions sessionManager,
	httpMetrics *metrics.HTTPMetrics,
	authService authsvc.Service,
	catalogService catalogsvc.Service,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	paymentsService paymentssvc.Service,
	ordersService ordersvc.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbClient, redisClient, logg))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(
			middleware.AuthRateLimit(registerPolicy, redisClient, logg),
			middleware.Idempotency(redisClient, logg),
		).Post("/register", controllers.AuthRegister(authService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, logg))
		r.Post("/logout", controllers.AuthLogout(authService, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Storefront catalog is public.
		r.Get("/products", controllers.ProductList(catalogService, logg))
		r.Get("/products/{productID}", controllers.ProductDetail(catalogService, logg))
		r.Get("/branches", controllers.BranchList(catalogService, logg))

		// Checkout and settlement accept guests; a bearer token, when
		// presented, ties the order to the account.
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthOptional(cfg.JWT, sessions, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Post("/orders", controllers.OrderCreate(checkoutService, logg))
			r.Get("/orders/{orderID}", controllers.OrderDetail(ordersService, logg))
			r.Get("/orders/{orderID}/payment", controllers.OrderPayment(ordersService, logg))

			r.Post("/payments/process", controllers.PaymentProcess(paymentsService, logg))
			r.Post("/payments/paypal/orders", controllers.PayPalOrderCreate(paymentsService, logg))
			r.Post("/payments/paypal/capture", controllers.PayPalOrderCapture(paymentsService, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessions, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Get("/", controllers.CartGet(cartService, logg))
			r.Post("/items", controllers.CartAddItem(cartService, logg))
			r.Patch("/items/{itemID}", controllers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{itemID}", controllers.CartRemoveItem(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/orders", controllers.AdminOrderList(ordersService, logg))
		r.Patch("/orders/{orderID}/status", controllers.AdminOrderUpdateStatus(ordersService, logg))
	})

	return r
}
