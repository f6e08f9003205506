package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/vietcart/storefront/internal/domain"
	"github.com/vietcart/storefront/internal/repositories"
)

var errCartRepositoryRequired = errors.New("cart service: repository is required")

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartItemNotFound indicates the referenced line is not in the cart.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartConflict indicates the cart kept changing under concurrent writers.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires the repository dependency for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo   repositories.CartRepository
	logger func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:   deps.Repository,
		logger: logger,
	}, nil
}

// GetCart loads the session cart. A session that has never stored a cart
// reads as an empty cart, never an error.
func (s *cartService) GetCart(ctx context.Context, sessionID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.Get(ctx, sid)
	if err != nil {
		if isRepoNotFound(err) {
			return emptyCart(sid), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return normalizeCart(cart, sid), nil
}

// AddItem merges the product into the cart, summing quantities for an
// existing line and clamping the result to the line's stock.
func (s *cartService) AddItem(ctx context.Context, cmd AddItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Item.ProductID <= 0 {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.Item.Name) == "" {
		return Cart{}, fmt.Errorf("%w: product name is required", ErrCartInvalidInput)
	}
	if cmd.Item.Price < 0 {
		return Cart{}, fmt.Errorf("%w: price must be non-negative", ErrCartInvalidInput)
	}

	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = domain.DefaultQuantity
	}

	incoming := normalizeLineItem(cmd.Item)

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		idx := indexOfLineItem(cart.Items, incoming.ProductID)
		if idx >= 0 {
			line := cart.Items[idx]
			line.Quantity = clampQuantity(line.Quantity+quantity, line.Stock)
			cart.Items[idx] = line
			return cart, nil
		}
		incoming.Quantity = clampQuantity(quantity, incoming.Stock)
		incoming.Selected = true
		cart.Items = append(cart.Items, incoming)
		return cart, nil
	})
}

// SetQuantity replaces a line's quantity. The raw value is parsed leniently:
// empty or non-numeric input falls back to 1 and the result is clamped to
// [1, stock].
func (s *cartService) SetQuantity(ctx context.Context, cmd SetQuantityCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	quantity := parseQuantity(cmd.RawQuantity)

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		idx := indexOfLineItem(cart.Items, cmd.ProductID)
		if idx < 0 {
			return Cart{}, ErrCartItemNotFound
		}
		line := cart.Items[idx]
		line.Quantity = clampQuantity(quantity, line.Stock)
		cart.Items[idx] = line
		return cart, nil
	})
}

// AdjustQuantity steps a line's quantity by delta. Stepping past the floor
// or ceiling is a no-op, not an error.
func (s *cartService) AdjustQuantity(ctx context.Context, cmd AdjustQuantityCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Delta == 0 {
		return Cart{}, fmt.Errorf("%w: delta must be non-zero", ErrCartInvalidInput)
	}

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		idx := indexOfLineItem(cart.Items, cmd.ProductID)
		if idx < 0 {
			return Cart{}, ErrCartItemNotFound
		}
		line := cart.Items[idx]
		line.Quantity = clampQuantity(line.Quantity+cmd.Delta, line.Stock)
		cart.Items[idx] = line
		return cart, nil
	})
}

// RemoveItem deletes a single line by product ID.
func (s *cartService) RemoveItem(ctx context.Context, sessionID string, productID int) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		idx := indexOfLineItem(cart.Items, productID)
		if idx < 0 {
			return Cart{}, ErrCartItemNotFound
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return cart, nil
	})
}

// RemoveItems deletes the given lines. IDs not present in the cart are
// ignored so the batch succeeds as a whole.
func (s *cartService) RemoveItems(ctx context.Context, sessionID string, productIDs []int) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if len(productIDs) == 0 {
		return Cart{}, fmt.Errorf("%w: at least one product id is required", ErrCartInvalidInput)
	}

	drop := make(map[int]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		kept := cart.Items[:0]
		for _, line := range cart.Items {
			if !drop[line.ProductID] {
				kept = append(kept, line)
			}
		}
		cart.Items = kept
		return cart, nil
	})
}

// SetSelected toggles the selection flag on a single line.
func (s *cartService) SetSelected(ctx context.Context, cmd SetSelectedCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		idx := indexOfLineItem(cart.Items, cmd.ProductID)
		if idx < 0 {
			return Cart{}, ErrCartItemNotFound
		}
		cart.Items[idx].Selected = cmd.Selected
		return cart, nil
	})
}

// SelectAll applies the selection flag to every line.
func (s *cartService) SelectAll(ctx context.Context, sessionID string, selected bool) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	return s.update(ctx, sid, func(cart Cart) (Cart, error) {
		for i := range cart.Items {
			cart.Items[i].Selected = selected
		}
		return cart, nil
	})
}

// Summary aggregates the cart for the badge and the summary panel. Counts
// are summed quantities, not distinct lines.
func (s *cartService) Summary(ctx context.Context, sessionID string) (CartSummary, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return CartSummary{}, err
	}
	return summarize(cart), nil
}

// Watch delivers the new cart state whenever another writer changes it.
func (s *cartService) Watch(ctx context.Context, sessionID string) (<-chan Cart, func(), error) {
	if s == nil || s.repo == nil {
		return nil, nil, ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil, nil, ErrCartInvalidInput
	}

	updates, cancel, err := s.repo.Watch(ctx, sid)
	if err != nil {
		return nil, nil, s.translateRepoError(err)
	}
	return updates, cancel, nil
}

func (s *cartService) update(ctx context.Context, sessionID string, mutate func(Cart) (Cart, error)) (Cart, error) {
	cart, err := s.repo.Update(ctx, sessionID, func(current domain.Cart) (domain.Cart, error) {
		return mutate(normalizeCart(current, sessionID))
	})
	if err != nil {
		if errors.Is(err, ErrCartItemNotFound) || errors.Is(err, ErrCartInvalidInput) {
			return Cart{}, err
		}
		return Cart{}, s.translateRepoError(err)
	}
	return normalizeCart(cart, sessionID), nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartItemNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		}
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func emptyCart(sessionID string) Cart {
	return Cart{SessionID: sessionID, Items: []LineItem{}}
}

func normalizeCart(cart Cart, sessionID string) Cart {
	if strings.TrimSpace(cart.SessionID) == "" {
		cart.SessionID = sessionID
	}
	if cart.Items == nil {
		cart.Items = []LineItem{}
	}
	for i := range cart.Items {
		cart.Items[i] = normalizeLineItem(cart.Items[i])
		cart.Items[i].Quantity = clampQuantity(cart.Items[i].Quantity, cart.Items[i].Stock)
	}
	return cart
}

func normalizeLineItem(line LineItem) LineItem {
	line.Name = strings.TrimSpace(line.Name)
	if line.Price < 0 {
		line.Price = 0
	}
	if line.Stock <= 0 {
		line.Stock = domain.DefaultStock
	}
	if strings.TrimSpace(line.Variant) == "" {
		line.Variant = domain.DefaultVariant
	}
	if strings.TrimSpace(line.Image) == "" {
		line.Image = domain.PlaceholderImage
	}
	if line.Quantity <= 0 {
		line.Quantity = domain.DefaultQuantity
	}
	return line
}

func clampQuantity(quantity, stock int) int {
	if stock <= 0 {
		stock = domain.DefaultStock
	}
	if quantity < 1 {
		return 1
	}
	if quantity > stock {
		return stock
	}
	return quantity
}

func parseQuantity(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.DefaultQuantity
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 1 {
		return domain.DefaultQuantity
	}
	return value
}

func indexOfLineItem(items []LineItem, productID int) int {
	for i, line := range items {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func summarize(cart Cart) CartSummary {
	var summary CartSummary
	for _, line := range cart.Items {
		summary.ItemCount += line.Quantity
		if line.Selected {
			summary.SelectedCount += line.Quantity
			summary.Subtotal += line.Subtotal()
		}
	}
	return summary
}
