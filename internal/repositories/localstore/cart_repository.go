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
	cartKeyPrefix           = "cart/"
	defaultConflictAttempts = 2
)

var errSessionIDRequired = errors.New("session id is required")

// CartRepository persists carts as one JSON document per session.
type CartRepository struct {
	store    localstore.Store
	logger   *zap.Logger
	clock    func() time.Time
	attempts int
}

// CartRepositoryOption customises repository behaviour.
type CartRepositoryOption func(*CartRepository)

// WithCartLogger attaches a logger used to report tolerated decode failures.
func WithCartLogger(logger *zap.Logger) CartRepositoryOption {
	return func(r *CartRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCartClock overrides the time source, primarily for tests.
func WithCartClock(clock func() time.Time) CartRepositoryOption {
	return func(r *CartRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithCartConflictAttempts sets how many times Update re-reads after a
// revision mismatch before giving up.
func WithCartConflictAttempts(attempts int) CartRepositoryOption {
	return func(r *CartRepository) {
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

// NewCartRepository wires a cart repository over the provided store.
func NewCartRepository(store localstore.Store, opts ...CartRepositoryOption) (*CartRepository, error) {
	if store == nil {
		return nil, errors.New("cart repository: store is required")
	}
	repo := &CartRepository{
		store:    store,
		logger:   zap.NewNop(),
		clock:    time.Now,
		attempts: defaultConflictAttempts,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

type cartDocument struct {
	SessionID string             `json:"session_id"`
	Items     []cartItemDocument `json:"items"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type cartItemDocument struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	Selected  bool   `json:"selected"`
}

// Get returns the stored cart for the session.
func (r *CartRepository) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	const op = "cart repository: get"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Cart{}, WrapError(op, errSessionIDRequired)
	}

	data, _, err := r.store.Get(ctx, cartKeyPrefix+sessionID)
	if err != nil {
		return domain.Cart{}, WrapError(op, err)
	}

	cart, ok := r.decode(sessionID, data)
	if !ok {
		// Corrupt content reads as an absent cart; the next write repairs it.
		return domain.Cart{}, notFoundError(op)
	}
	return cart, nil
}

// Update applies mutate under compare-and-swap, re-reading on contention.
func (r *CartRepository) Update(ctx context.Context, sessionID string, mutate func(domain.Cart) (domain.Cart, error)) (domain.Cart, error) {
	const op = "cart repository: update"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Cart{}, WrapError(op, errSessionIDRequired)
	}
	if mutate == nil {
		return domain.Cart{}, WrapError(op, errors.New("mutate function is required"))
	}

	key := cartKeyPrefix + sessionID
	for attempt := 0; attempt < r.attempts; attempt++ {
		current := domain.Cart{SessionID: sessionID}
		expected := localstore.NoRevision

		data, rev, err := r.store.Get(ctx, key)
		switch {
		case err == nil:
			expected = rev
			if cart, ok := r.decode(sessionID, data); ok {
				current = cart
			}
		case errors.Is(err, localstore.ErrNotFound):
			// First write for this session.
		default:
			return domain.Cart{}, WrapError(op, err)
		}

		next, err := mutate(current)
		if err != nil {
			return domain.Cart{}, err
		}
		next.SessionID = sessionID
		next.UpdatedAt = r.clock().UTC()

		encoded, err := json.Marshal(encodeCart(next))
		if err != nil {
			return domain.Cart{}, WrapError(op, err)
		}

		if _, err := r.store.Put(ctx, key, encoded, expected); err != nil {
			if errors.Is(err, localstore.ErrRevisionMismatch) {
				continue
			}
			return domain.Cart{}, WrapError(op, err)
		}
		return next, nil
	}

	return domain.Cart{}, conflictError(op)
}

// Watch streams cart states as other writers change the underlying document.
func (r *CartRepository) Watch(ctx context.Context, sessionID string) (<-chan domain.Cart, func(), error) {
	const op = "cart repository: watch"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil, WrapError(op, errSessionIDRequired)
	}

	events, cancel, err := r.store.Subscribe(ctx, cartKeyPrefix+sessionID)
	if err != nil {
		return nil, nil, WrapError(op, err)
	}

	out := make(chan domain.Cart, 1)
	go func() {
		defer close(out)
		for event := range events {
			cart := domain.Cart{SessionID: sessionID}
			if !event.Deleted {
				loaded, err := r.Get(ctx, sessionID)
				if err == nil {
					cart = loaded
				}
			}
			select {
			case out <- cart:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (r *CartRepository) decode(sessionID string, data []byte) (domain.Cart, bool) {
	var doc cartDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn("discarding malformed cart document",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return domain.Cart{}, false
	}

	cart := domain.Cart{
		SessionID: sessionID,
		UpdatedAt: doc.UpdatedAt,
		Items:     make([]domain.LineItem, 0, len(doc.Items)),
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.LineItem{
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
	return cart, true
}

func encodeCart(cart domain.Cart) cartDocument {
	doc := cartDocument{
		SessionID: cart.SessionID,
		UpdatedAt: cart.UpdatedAt,
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
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
