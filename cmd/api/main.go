package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/mateoreyes/ordercore-backend/api/controllers"
	"github.com/mateoreyes/ordercore-backend/api/routes"
	cartsvc "github.com/mateoreyes/ordercore-backend/internal/cart"
	checkoutsvc "github.com/mateoreyes/ordercore-backend/internal/checkout"
	"github.com/mateoreyes/ordercore-backend/internal/inventory"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	"github.com/mateoreyes/ordercore-backend/internal/payments"
	product "github.com/mateoreyes/ordercore-backend/internal/products"
	"github.com/mateoreyes/ordercore-backend/pkg/config"
	"github.com/mateoreyes/ordercore-backend/pkg/db"
	"github.com/mateoreyes/ordercore-backend/pkg/logger"
	"github.com/mateoreyes/ordercore-backend/pkg/migrate"
	"github.com/mateoreyes/ordercore-backend/pkg/outbox"
	"github.com/mateoreyes/ordercore-backend/pkg/redis"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	ledger := inventory.NewLedger()
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	productService, err := product.NewService(product.NewRepository(gormDB), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}
	cartService, err := cartsvc.NewService(cartsvc.NewRepository(gormDB), product.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}
	ordersRepo := orders.NewRepository(gormDB)
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, ledger)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}
	paymentsService, err := payments.NewService(ordersRepo, dbClient, outboxService, ledger)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}
	checkoutService, err := checkoutsvc.NewService(
		cartsvc.NewRepository(gormDB),
		product.NewRepository(gormDB),
		ordersRepo,
		dbClient,
		outboxService,
		ledger,
		cfg.Checkout.PaymentWindow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
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
			Config: cfg,
			Logger: logg,
			Readies: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Products: productService,
			Cart:     cartService,
			Checkout: checkoutService,
			Payments: paymentsService,
			Orders:   ordersService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
