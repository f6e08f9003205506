package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// ProductSort names the supported catalog orderings.
type ProductSort string

const (
	// ProductSortDefault keeps the catalog's source ordering.
	ProductSortDefault ProductSort = "default"
	// ProductSortPriceAsc orders by selling price, cheapest first.
	ProductSortPriceAsc ProductSort = "price-asc"
	// ProductSortPriceDesc orders by selling price, most expensive first.
	ProductSortPriceDesc ProductSort = "price-desc"
	// ProductSortDiscountDesc orders by discount percentage, deepest first.
	ProductSortDiscountDesc ProductSort = "discount-desc"
	// ProductSortNameAsc orders by product name using Vietnamese collation.
	ProductSortNameAsc ProductSort = "name-asc"
	// ProductSortNameDesc is the reverse of ProductSortNameAsc.
	ProductSortNameDesc ProductSort = "name-desc"
)

// Page is a fixed-size slice of a larger result set.
type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Line item defaults applied when upstream data is missing fields. The
// placeholder stock is used until real availability is known.
const (
	DefaultQuantity  = 1
	DefaultStock     = 10
	DefaultVariant   = "Mặc định"
	PlaceholderImage = "/assets/images/placeholder.png"
)

const (
	OrderIDPrefix        = "ORD"
	PaymentMethodVNPay   = "vnpay"
	PaymentMethodCOD     = "cod"
	OrderStatusPending   = "pending"
	OrderStatusPlaced    = "placed"
	OrderStatusPaid      = "paid"
	OrderStatusPayFailed = "payment-failed"
	PhoneDigits          = 10
)

// LineItem is a single product entry in a cart or checkout snapshot.
// Quantity always stays within [1, Stock].
type LineItem struct {
	ProductID int
	Name      string
	Price     int64
	Image     string
	Variant   string
	Quantity  int
	Stock     int
	Selected  bool
}

// Subtotal is the line's contribution to the order value.
func (l LineItem) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// Cart is the session-scoped shopping cart.
type Cart struct {
	SessionID string
	Items     []LineItem
	UpdatedAt time.Time
}

// CartSummary captures the aggregates the cart badge and summary panel show.
// SelectedCount and ItemCount both sum quantities, not distinct lines.
type CartSummary struct {
	SelectedCount int
	ItemCount     int
	Subtotal      int64
}

// CheckoutSnapshot is an independent copy of the lines being purchased,
// taken when the buyer proceeds to checkout. The live cart is not modified.
type CheckoutSnapshot struct {
	SessionID string
	Items     []LineItem
	CreatedAt time.Time
}

// CheckoutTotals breaks down the amount due, all values in VND.
type CheckoutTotals struct {
	Subtotal    int64
	ShippingFee int64
	Discount    int64
	Total       int64
}

// CustomerInfo carries the buyer-entered delivery details.
type CustomerInfo struct {
	FullName string
	Phone    string
	Email    string
	Address  string
	Note     string
}

// Order is a placed order, locally recorded whether or not the payment
// gateway round trip succeeded.
type Order struct {
	ID            string
	SessionID     string
	Items         []LineItem
	Totals        CheckoutTotals
	Customer      CustomerInfo
	PaymentMethod string
	BankCode      string
	Status        string
	PlacedAt      time.Time
}

// PendingOrder is an order awaiting gateway confirmation. RedirectURL is the
// signed payment URL the buyer is sent to.
type PendingOrder struct {
	Order       Order
	PaymentRef  string
	RedirectURL string
	ExpiresAt   time.Time
}

// Product is a catalog entry as served to the storefront.
type Product struct {
	ID              int
	Name            string
	Slug            string
	Price           int64
	OriginalPrice   int64
	DiscountPercent int
	Category        string
	CategorySlug    string
	Image           string
	Stock           int
	Sold            int
	Rating          float64
	CreatedAt       time.Time
}

// Category groups products for browsing.
type Category struct {
	ID    int
	Name  string
	Slug  string
	Image string
}

// Banner is a promotional image slot on the storefront.
type Banner struct {
	ID       int
	Image    string
	Link     string
	Position string
}

// Bank is an entry in the VNPay bank directory.
type Bank struct {
	Code    string
	Name    string
	LogoURL string
}

// HealthStatus classifies the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK reports a healthy dependency.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded reports a dependency responding with errors.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError reports a dependency that timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck is a single dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probe results for readiness checks.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
