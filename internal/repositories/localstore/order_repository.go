package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/vietcart/storefront/internal/domain"
	"github.com/vietcart/storefront/internal/platform/localstore"
)

const (
	ordersKeyPrefix  = "orders/"
	pendingKeyPrefix = "pending/"
)

// OrderRepository keeps order history and the pending gateway order per session.
type OrderRepository struct {
	store    localstore.Store
	logger   *zap.Logger
	attempts int
}

// OrderRepositoryOption customises repository behaviour.
type OrderRepositoryOption func(*OrderRepository)

// WithOrderLogger attaches a logger used to report tolerated decode failures.
func WithOrderLogger(logger *zap.Logger) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOrderConflictAttempts sets how many times Append re-reads after a
// revision mismatch before giving up.
func WithOrderConflictAttempts(attempts int) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

// NewOrderRepository wires an order repository over the provided store.
func NewOrderRepository(store localstore.Store, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if store == nil {
		return nil, errors.New("order repository: store is required")
	}
	repo := &OrderRepository{
		store:    store,
		logger:   zap.NewNop(),
		attempts: defaultConflictAttempts,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

type orderDocument struct {
	ID            string             `json:"id"`
	SessionID     string             `json:"session_id"`
	Items         []cartItemDocument `json:"items"`
	Totals        totalsDocument     `json:"totals"`
	Customer      customerDocument   `json:"customer"`
	PaymentMethod string             `json:"payment_method"`
	BankCode      string             `json:"bank_code,omitempty"`
	Status        string             `json:"status"`
	PlacedAt      time.Time          `json:"placed_at"`
}

type totalsDocument struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shipping_fee"`
	Discount    int64 `json:"discount"`
	Total       int64 `json:"total"`
}

type customerDocument struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address"`
	Note     string `json:"note,omitempty"`
}

type pendingDocument struct {
	Order       orderDocument `json:"order"`
	PaymentRef  string        `json:"payment_ref"`
	RedirectURL string        `json:"redirect_url"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// List returns the session's order history, oldest first.
func (r *OrderRepository) List(ctx context.Context, sessionID string) ([]domain.Order, error) {
	const op = "order repository: list"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, WrapError(op, errSessionIDRequired)
	}

	data, _, err := r.store.Get(ctx, ordersKeyPrefix+sessionID)
	if errors.Is(err, localstore.ErrNotFound) {
		return []domain.Order{}, nil
	}
	if err != nil {
		return nil, WrapError(op, err)
	}

	docs, ok := r.decodeOrders(sessionID, data)
	if !ok {
		return []domain.Order{}, nil
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc))
	}
	return orders, nil
}

// Append adds the order to the session's history under compare-and-swap.
func (r *OrderRepository) Append(ctx context.Context, order domain.Order) error {
	const op = "order repository: append"

	sessionID := strings.TrimSpace(order.SessionID)
	if sessionID == "" {
		return WrapError(op, errSessionIDRequired)
	}

	key := ordersKeyPrefix + sessionID
	for attempt := 0; attempt < r.attempts; attempt++ {
		var docs []orderDocument
		expected := localstore.NoRevision

		data, rev, err := r.store.Get(ctx, key)
		switch {
		case err == nil:
			expected = rev
			if existing, ok := r.decodeOrders(sessionID, data); ok {
				docs = existing
			}
		case errors.Is(err, localstore.ErrNotFound):
		default:
			return WrapError(op, err)
		}

		docs = append(docs, encodeOrder(order))
		encoded, err := json.Marshal(docs)
		if err != nil {
			return WrapError(op, err)
		}

		if _, err := r.store.Put(ctx, key, encoded, expected); err != nil {
			if errors.Is(err, localstore.ErrRevisionMismatch) {
				continue
			}
			return WrapError(op, err)
		}
		return nil
	}

	return conflictError(op)
}

// GetPending returns the order awaiting gateway confirmation.
func (r *OrderRepository) GetPending(ctx context.Context, sessionID string) (domain.PendingOrder, error) {
	const op = "order repository: get pending"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.PendingOrder{}, WrapError(op, errSessionIDRequired)
	}

	data, _, err := r.store.Get(ctx, pendingKeyPrefix+sessionID)
	if err != nil {
		return domain.PendingOrder{}, WrapError(op, err)
	}

	var doc pendingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn("discarding malformed pending order document",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return domain.PendingOrder{}, notFoundError(op)
	}

	return domain.PendingOrder{
		Order:       decodeOrder(doc.Order),
		PaymentRef:  doc.PaymentRef,
		RedirectURL: doc.RedirectURL,
		ExpiresAt:   doc.ExpiresAt,
	}, nil
}

// SavePending replaces the pending order. A session has at most one.
func (r *OrderRepository) SavePending(ctx context.Context, pending domain.PendingOrder) error {
	const op = "order repository: save pending"

	sessionID := strings.TrimSpace(pending.Order.SessionID)
	if sessionID == "" {
		return WrapError(op, errSessionIDRequired)
	}

	doc := pendingDocument{
		Order:       encodeOrder(pending.Order),
		PaymentRef:  pending.PaymentRef,
		RedirectURL: pending.RedirectURL,
		ExpiresAt:   pending.ExpiresAt,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return WrapError(op, err)
	}
	if _, err := r.store.Put(ctx, pendingKeyPrefix+sessionID, encoded, localstore.AnyRevision); err != nil {
		return WrapError(op, err)
	}
	return nil
}

// DeletePending clears the pending order once the gateway outcome is known.
func (r *OrderRepository) DeletePending(ctx context.Context, sessionID string) error {
	const op = "order repository: delete pending"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return WrapError(op, errSessionIDRequired)
	}
	err := r.store.Delete(ctx, pendingKeyPrefix+sessionID, localstore.AnyRevision)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return WrapError(op, err)
	}
	return nil
}

func (r *OrderRepository) decodeOrders(sessionID string, data []byte) ([]orderDocument, bool) {
	var docs []orderDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		r.logger.Warn("discarding malformed order history document",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, false
	}
	return docs, true
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:        order.ID,
		SessionID: order.SessionID,
		Totals: totalsDocument{
			Subtotal:    order.Totals.Subtotal,
			ShippingFee: order.Totals.ShippingFee,
			Discount:    order.Totals.Discount,
			Total:       order.Totals.Total,
		},
		Customer: customerDocument{
			FullName: order.Customer.FullName,
			Phone:    order.Customer.Phone,
			Email:    order.Customer.Email,
			Address:  order.Customer.Address,
			Note:     order.Customer.Note,
		},
		PaymentMethod: order.PaymentMethod,
		BankCode:      order.BankCode,
		Status:        order.Status,
		PlacedAt:      order.PlacedAt,
		Items:         make([]cartItemDocument, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Stock:     item.Stock,
			Selected:  item.Selected,
		})
	}
	return doc
}

func decodeOrder(doc orderDocument) domain.Order {
	order := domain.Order{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		Totals: domain.CheckoutTotals{
			Subtotal:    doc.Totals.Subtotal,
			ShippingFee: doc.Totals.ShippingFee,
			Discount:    doc.Totals.Discount,
			Total:       doc.Totals.Total,
		},
		Customer: domain.CustomerInfo{
			FullName: doc.Customer.FullName,
			Phone:    doc.Customer.Phone,
			Email:    doc.Customer.Email,
			Address:  doc.Customer.Address,
			Note:     doc.Customer.Note,
		},
		PaymentMethod: doc.PaymentMethod,
		BankCode:      doc.BankCode,
		Status:        doc.Status,
		PlacedAt:      doc.PlacedAt,
		Items:         make([]domain.LineItem, 0, len(doc.Items)),
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Stock:     item.Stock,
			Selected:  item.Selected,
		})
	}
	return order
}
