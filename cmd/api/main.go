package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/vietcart/storefront/internal/di"
	"github.com/vietcart/storefront/internal/handlers"
	"github.com/vietcart/storefront/internal/payments"
	"github.com/vietcart/storefront/internal/platform/config"
	"github.com/vietcart/storefront/internal/platform/idempotency"
	"github.com/vietcart/storefront/internal/platform/localstore"
	"github.com/vietcart/storefront/internal/platform/observability"
	"github.com/vietcart/storefront/internal/platform/secrets"
	"github.com/vietcart/storefront/internal/repositories"
	storerepo "github.com/vietcart/storefront/internal/repositories/localstore"
	"github.com/vietcart/storefront/internal/repositories/mysql"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher := secrets.NewFetcher(secrets.WithLogger(logger.Named("secrets")))
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	storeOpts := []localstore.FileStoreOption{
		localstore.WithLogger(logger.Named("store")),
	}
	if cfg.Features.EnableStoreWatch && cfg.Store.Watch {
		storeOpts = append(storeOpts, localstore.WithWatcher())
	}
	store, err := localstore.NewFileStore(cfg.Store.Dir, storeOpts...)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("session store close error", zap.Error(err))
		}
	}()

	db, err := sql.Open("mysql", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to open catalog database", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("catalog database close error", zap.Error(err))
		}
	}()

	cartRepo, err := storerepo.NewCartRepository(store,
		storerepo.WithCartLogger(logger.Named("cart_repo")),
		storerepo.WithCartConflictAttempts(cfg.Store.ConflictRetries),
	)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	checkoutRepo, err := storerepo.NewCheckoutRepository(store, logger.Named("checkout_repo"))
	if err != nil {
		logger.Fatal("failed to initialise checkout repository", zap.Error(err))
	}
	orderRepo, err := storerepo.NewOrderRepository(store,
		storerepo.WithOrderLogger(logger.Named("order_repo")),
	)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	catalogRepo, err := mysql.NewCatalogRepository(db)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "catalog-db", Check: catalogRepo.Ping},
		{Name: "cart-store", Check: storeProbe(store)},
	})
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	var gateway *payments.Manager
	if cfg.Features.EnableVNPay {
		provider, err := payments.NewVNPayProvider(payments.VNPayConfig{
			TmnCode:     cfg.VNPay.TmnCode,
			HashSecret:  cfg.VNPay.HashSecret,
			PayURL:      cfg.VNPay.PayURL,
			APIURL:      cfg.VNPay.APIURL,
			ReturnURL:   cfg.VNPay.ReturnURL,
			ExpireAfter: cfg.VNPay.ExpireAfter,
		}, payments.WithHTTPClient(&http.Client{Timeout: cfg.VNPay.Timeout}))
		if err != nil {
			logger.Fatal("failed to initialise vnpay provider", zap.Error(err))
		}
		gateway, err = payments.NewManager(map[string]payments.Provider{
			"vnpay": provider,
		})
		if err != nil {
			logger.Fatal("failed to initialise payment manager", zap.Error(err))
		}
	} else {
		logger.Warn("vnpay disabled; gateway orders will be recorded as payment failures")
	}

	container, err := di.NewContainer(ctx, cfg, di.Repositories{
		Carts:     cartRepo,
		Checkouts: checkoutRepo,
		Orders:    orderRepo,
		Catalog:   catalogRepo,
		Health:    healthRepo,
	}, gateway, logger)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewMemoryStore(),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute),
		idempotencyMiddleware,
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)
	cartHandlers := handlers.NewCartHandlers(container.Services.Cart)
	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Catalog)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Checkout)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// storeProbe verifies the session store answers reads. A missing probe key
// still proves the store is reachable.
func storeProbe(store localstore.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		_, _, err := store.Get(ctx, "health/probe")
		if err != nil && !errors.Is(err, localstore.ErrNotFound) {
			return err
		}
		return nil
	}
}
