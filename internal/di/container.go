package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vietcart/storefront/internal/payments"
	"github.com/vietcart/storefront/internal/platform/config"
	"github.com/vietcart/storefront/internal/repositories"
	"github.com/vietcart/storefront/internal/services"
)

// Repositories bundles the persistence ports the services are built from.
type Repositories struct {
	Carts     repositories.CartRepository
	Checkouts repositories.CheckoutRepository
	Orders    repositories.OrderRepository
	Catalog   repositories.CatalogRepository
	Health    repositories.HealthRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart     services.CartService
	Catalog  services.CatalogService
	Checkout services.CheckoutService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer assembles the service layer from the provided repositories. The
// payment gateway may be nil, in which case gateway orders fall back to local
// records.
func NewContainer(ctx context.Context, cfg config.Config, repos Repositories, gateway *payments.Manager, logger *zap.Logger) (*Container, error) {
	if repos.Carts == nil {
		return nil, errors.New("di: cart repository is required")
	}
	if repos.Checkouts == nil {
		return nil, errors.New("di: checkout repository is required")
	}
	if repos.Orders == nil {
		return nil, errors.New("di: order repository is required")
	}
	if repos.Catalog == nil {
		return nil, errors.New("di: catalog repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc, err := buildServices(cfg, repos, gateway, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, gateway *payments.Manager, logger *zap.Logger) (Services, error) {
	var svc Services

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: repos.Carts,
		Logger:     zapEventLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository:     repos.Catalog,
		PageSize:       cfg.Catalog.PageSize,
		NewProductIDGt: cfg.Catalog.NewProductIDGt,
		Logger:         zapEventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	checkoutDeps := services.CheckoutServiceDeps{
		Checkouts:             repos.Checkouts,
		Orders:                repos.Orders,
		Carts:                 repos.Carts,
		Clock:                 time.Now,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		FlatShippingFee:       cfg.Checkout.FlatShippingFee,
		Logger:                zapEventLogger(logger.Named("checkout")),
	}
	if gateway != nil {
		checkoutDeps.Gateway = gateway
	}
	checkoutSvc, err := services.NewCheckoutService(checkoutDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	if repos.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// zapEventLogger adapts a zap logger to the event callback the services use.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
