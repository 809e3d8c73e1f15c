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
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/api/routes"
	authsvc "github.com/kapehan/kapehan-backend/internal/auth"
	cartsvc "github.com/kapehan/kapehan-backend/internal/cart"
	catalogsvc "github.com/kapehan/kapehan-backend/internal/catalog"
	checkoutsvc "github.com/kapehan/kapehan-backend/internal/checkout"
	ordersvc "github.com/kapehan/kapehan-backend/internal/orders"
	paymentssvc "github.com/kapehan/kapehan-backend/internal/payments"
	"github.com/kapehan/kapehan-backend/pkg/auth/session"
	"github.com/kapehan/kapehan-backend/pkg/config"
	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/logger"
	"github.com/kapehan/kapehan-backend/pkg/metrics"
	"github.com/kapehan/kapehan-backend/pkg/migrate"
	"github.com/kapehan/kapehan-backend/pkg/paypal"
	"github.com/kapehan/kapehan-backend/pkg/redis"
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

	dbClient, err := openDatabase(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if !cfg.FeatureFlags.UseSQLite {
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	paypalClient, err := paypal.NewClient(context.Background(), cfg.PayPal, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paypal client", err)
		os.Exit(1)
	}

	authRepo := authsvc.NewRepository(dbClient.DB())
	catalogRepo := catalogsvc.NewRepository(dbClient.DB())
	cartRepo := cartsvc.NewRepository(dbClient.DB())
	ordersRepo := ordersvc.NewRepository(dbClient.DB())

	authService, err := authsvc.NewService(authRepo, dbClient, sessionManager, cfg.JWT, cfg.Password, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	catalogService, err := catalogsvc.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartService, err := cartsvc.NewService(cartRepo, dbClient, catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(dbClient, catalogRepo, cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	pendingStore, err := paymentssvc.NewPendingStore(redisClient, cfg.Checkout.PendingOrderTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create pending order store", err)
		os.Exit(1)
	}

	paymentsService, err := paymentssvc.NewService(dbClient, cfg.Checkout, pendingStore, paypalClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	ordersService, err := ordersvc.NewService(ordersRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)

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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			httpMetrics,
			authService,
			catalogService,
			cartService,
			checkoutService,
			paymentsService,
			ordersService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

// openDatabase connects to postgres, or to a local sqlite file when the
// KAPEHAN_USE_SQLITE flag is set for dependency-free local runs.
func openDatabase(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	if !cfg.FeatureFlags.UseSQLite {
		return db.New(ctx, cfg.DB, logg)
	}

	conn, err := gorm.Open(sqlite.Open("file:kapehan.db?_pragma=foreign_keys(1)"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	client := db.NewWithConn(conn)
	if cfg.FeatureFlags.AutoMigrate {
		if err := conn.AutoMigrate(
			&models.User{},
			&models.Branch{},
			&models.Product{},
			&models.ProductVariant{},
			&models.Cart{},
			&models.CartItem{},
			&models.Order{},
			&models.OrderItem{},
			&models.Payment{},
		); err != nil {
			return nil, err
		}
	}

	logg.Info(ctx, "sqlite database ready")
	return client, nil
}
