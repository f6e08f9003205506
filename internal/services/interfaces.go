package services

import (
	"context"

	domain "github.com/vietcart/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SortOrder          = domain.SortOrder
	ProductSort        = domain.ProductSort
	LineItem           = domain.LineItem
	Cart               = domain.Cart
	CartSummary        = domain.CartSummary
	CheckoutSnapshot   = domain.CheckoutSnapshot
	CheckoutTotals     = domain.CheckoutTotals
	CustomerInfo       = domain.CustomerInfo
	Order              = domain.Order
	PendingOrder       = domain.PendingOrder
	Product            = domain.Product
	Category           = domain.Category
	Banner             = domain.Banner
	Bank               = domain.Bank
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages the session cart held in the local store.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (Cart, error)
	SetQuantity(ctx context.Context, cmd SetQuantityCommand) (Cart, error)
	AdjustQuantity(ctx context.Context, cmd AdjustQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, sessionID string, productID int) (Cart, error)
	RemoveItems(ctx context.Context, sessionID string, productIDs []int) (Cart, error)
	SetSelected(ctx context.Context, cmd SetSelectedCommand) (Cart, error)
	SelectAll(ctx context.Context, sessionID string, selected bool) (Cart, error)
	Summary(ctx context.Context, sessionID string) (CartSummary, error)
	Watch(ctx context.Context, sessionID string) (<-chan Cart, func(), error)
}

// AddItemCommand adds a product to the cart, merging with an existing line.
type AddItemCommand struct {
	SessionID string
	Item      LineItem
	Quantity  int
}

// SetQuantityCommand replaces a line's quantity. RawQuantity is parsed
// leniently: anything that is not a positive integer becomes 1.
type SetQuantityCommand struct {
	SessionID   string
	ProductID   int
	RawQuantity string
}

// AdjustQuantityCommand steps a line's quantity by Delta.
type AdjustQuantityCommand struct {
	SessionID string
	ProductID int
	Delta     int
}

// SetSelectedCommand toggles a line's selection flag.
type SetSelectedCommand struct {
	SessionID string
	ProductID int
	Selected  bool
}

// CatalogService serves products, categories and banners to the storefront.
type CatalogService interface {
	Browse(ctx context.Context, query BrowseQuery) (domain.Page[Product], error)
	GetProduct(ctx context.Context, productID int) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListBanners(ctx context.Context, position string) ([]Banner, error)
}

// BrowseQuery carries the catalog listing filters, sort and page selection.
type BrowseQuery struct {
	Category     string
	Keyword      string
	DiscountOnly bool
	NewOnly      bool
	MinPrice     int64
	MaxPrice     int64
	Sort         ProductSort
	Page         int
}

// CheckoutService owns the snapshot, totals and order placement flow.
type CheckoutService interface {
	BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSnapshot, error)
	LoadCheckout(ctx context.Context, sessionID string) (CheckoutSnapshot, CheckoutTotals, error)
	Totals(items []LineItem) CheckoutTotals
	ValidatePhone(raw string) bool
	ListBanks(filter string) []Bank
	LookupBank(code string) (Bank, bool)
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderResult, error)
	ConfirmReturn(ctx context.Context, cmd ConfirmReturnCommand) (Order, error)
	ListOrders(ctx context.Context, sessionID string) ([]Order, error)
}

// BeginCheckoutCommand snapshots the selected cart lines. When ProductIDs is
// non-empty only that subset is snapshotted.
type BeginCheckoutCommand struct {
	SessionID  string
	ProductIDs []int
}

// PlaceOrderCommand carries the buyer details and payment choice.
type PlaceOrderCommand struct {
	SessionID     string
	Customer      CustomerInfo
	PaymentMethod string
	BankCode      string
	ClientIP      string
}

// OrderResult is the outcome of PlaceOrder. Exactly one of Order and
// Pending is meaningful: gateway orders come back pending with a redirect,
// everything else is recorded locally right away.
type OrderResult struct {
	Order       Order
	Pending     bool
	RedirectURL string
}

// ConfirmReturnCommand resolves a pending gateway order from return or IPN
// parameters.
type ConfirmReturnCommand struct {
	SessionID string
	Params    map[string][]string
}

// SystemService exposes aggregated dependency health for readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
