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

const checkoutKeyPrefix = "checkout/"

// CheckoutRepository stores the snapshot of lines entering checkout.
type CheckoutRepository struct {
	store  localstore.Store
	logger *zap.Logger
}

// NewCheckoutRepository wires a checkout repository over the provided store.
func NewCheckoutRepository(store localstore.Store, logger *zap.Logger) (*CheckoutRepository, error) {
	if store == nil {
		return nil, errors.New("checkout repository: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutRepository{store: store, logger: logger}, nil
}

type checkoutDocument struct {
	SessionID string             `json:"session_id"`
	Items     []cartItemDocument `json:"items"`
	CreatedAt time.Time          `json:"created_at"`
}

// Get returns the stored snapshot for the session.
func (r *CheckoutRepository) Get(ctx context.Context, sessionID string) (domain.CheckoutSnapshot, error) {
	const op = "checkout repository: get"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.CheckoutSnapshot{}, WrapError(op, errSessionIDRequired)
	}

	data, _, err := r.store.Get(ctx, checkoutKeyPrefix+sessionID)
	if err != nil {
		return domain.CheckoutSnapshot{}, WrapError(op, err)
	}

	var doc checkoutDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn("discarding malformed checkout document",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return domain.CheckoutSnapshot{}, notFoundError(op)
	}

	snapshot := domain.CheckoutSnapshot{
		SessionID: sessionID,
		CreatedAt: doc.CreatedAt,
		Items:     make([]domain.LineItem, 0, len(doc.Items)),
	}
	for _, item := range doc.Items {
		snapshot.Items = append(snapshot.Items, domain.LineItem{
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
	return snapshot, nil
}

// Save replaces the stored snapshot unconditionally. Snapshots have a single
// writer per session so no compare-and-swap is needed.
func (r *CheckoutRepository) Save(ctx context.Context, snapshot domain.CheckoutSnapshot) error {
	const op = "checkout repository: save"

	sessionID := strings.TrimSpace(snapshot.SessionID)
	if sessionID == "" {
		return WrapError(op, errSessionIDRequired)
	}

	doc := checkoutDocument{
		SessionID: sessionID,
		CreatedAt: snapshot.CreatedAt,
		Items:     make([]cartItemDocument, 0, len(snapshot.Items)),
	}
	for _, item := range snapshot.Items {
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

	encoded, err := json.Marshal(doc)
	if err != nil {
		return WrapError(op, err)
	}
	if _, err := r.store.Put(ctx, checkoutKeyPrefix+sessionID, encoded, localstore.AnyRevision); err != nil {
		return WrapError(op, err)
	}
	return nil
}

// Delete removes the snapshot once checkout concludes.
func (r *CheckoutRepository) Delete(ctx context.Context, sessionID string) error {
	const op = "checkout repository: delete"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return WrapError(op, errSessionIDRequired)
	}
	err := r.store.Delete(ctx, checkoutKeyPrefix+sessionID, localstore.AnyRevision)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return WrapError(op, err)
	}
	return nil
}
