package repositories

import (
	"context"

	domain "github.com/vietcart/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists session-scoped carts.
type CartRepository interface {
	// Get returns the cart for the session. Should return a RepositoryError
	// with IsNotFound when no cart has been stored yet.
	Get(ctx context.Context, sessionID string) (domain.Cart, error)
	// Update applies mutate to the current cart under compare-and-swap.
	// Concurrent writers trigger a bounded re-read and reapply; exhausted
	// retries surface as a RepositoryError with IsConflict.
	Update(ctx context.Context, sessionID string, mutate func(domain.Cart) (domain.Cart, error)) (domain.Cart, error)
	// Watch delivers the new cart state whenever another writer changes it.
	Watch(ctx context.Context, sessionID string) (<-chan domain.Cart, func(), error)
}

// CheckoutRepository stores the snapshot of lines being purchased.
type CheckoutRepository interface {
	Get(ctx context.Context, sessionID string) (domain.CheckoutSnapshot, error)
	Save(ctx context.Context, snapshot domain.CheckoutSnapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// OrderRepository keeps the session's order history and the pending order
// awaiting gateway confirmation.
type OrderRepository interface {
	List(ctx context.Context, sessionID string) ([]domain.Order, error)
	Append(ctx context.Context, order domain.Order) error
	GetPending(ctx context.Context, sessionID string) (domain.PendingOrder, error)
	SavePending(ctx context.Context, pending domain.PendingOrder) error
	DeletePending(ctx context.Context, sessionID string) error
}

// CatalogRepository serves read-only product data.
type CatalogRepository interface {
	ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int) (domain.Product, error)
	ListProductsByCategory(ctx context.Context, categorySlug string) ([]domain.Product, error)
	SearchProducts(ctx context.Context, keyword string, limit, offset int) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListBanners(ctx context.Context, position string) ([]domain.Banner, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
