package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	domain "github.com/vietcart/storefront/internal/domain"
)

type stubCartRepository struct {
	cart      domain.Cart
	getErr    error
	updateErr error
	watchCh   chan domain.Cart
}

func (s *stubCartRepository) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	if s.getErr != nil {
		return domain.Cart{}, s.getErr
	}
	return s.cart, nil
}

func (s *stubCartRepository) Update(ctx context.Context, sessionID string, mutate func(domain.Cart) (domain.Cart, error)) (domain.Cart, error) {
	if s.updateErr != nil {
		return domain.Cart{}, s.updateErr
	}
	next, err := mutate(s.cart)
	if err != nil {
		return domain.Cart{}, err
	}
	next.SessionID = sessionID
	s.cart = next
	return next, nil
}

func (s *stubCartRepository) Watch(ctx context.Context, sessionID string) (<-chan domain.Cart, func(), error) {
	if s.watchCh == nil {
		s.watchCh = make(chan domain.Cart, 1)
	}
	return s.watchCh, func() {}, nil
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func newTestCartService(t *testing.T, repo *stubCartRepository) CartService {
	t.Helper()
	service, err := NewCartService(CartServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return service
}

func TestCartServiceGetCartMissingReadsEmpty(t *testing.T) {
	repo := &stubCartRepository{getErr: stubRepoError{notFound: true}}
	service := newTestCartService(t, repo)

	cart, err := service.GetCart(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetCart returned error: %v", err)
	}
	if cart.SessionID != "sess-1" {
		t.Errorf("unexpected session id %s", cart.SessionID)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(cart.Items))
	}
}

func TestCartServiceAddItemMergesAndClamps(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{Items: []domain.LineItem{
		{ProductID: 1, Name: "Áo thun", Price: 120000, Quantity: 4, Stock: 5, Selected: true},
	}}}
	service := newTestCartService(t, repo)

	cart, err := service.AddItem(context.Background(), AddItemCommand{
		SessionID: "sess-1",
		Item:      LineItem{ProductID: 1, Name: "Áo thun", Price: 120000, Stock: 5},
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected the lines to merge, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("expected quantity clamped to stock 5, got %d", cart.Items[0].Quantity)
	}
}

func TestCartServiceAddItemAppliesDefaults(t *testing.T) {
	repo := &stubCartRepository{}
	service := newTestCartService(t, repo)

	cart, err := service.AddItem(context.Background(), AddItemCommand{
		SessionID: "sess-1",
		Item:      LineItem{ProductID: 7, Name: "Bình giữ nhiệt", Price: 250000},
	})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	line := cart.Items[0]
	if line.Quantity != domain.DefaultQuantity {
		t.Errorf("expected default quantity, got %d", line.Quantity)
	}
	if line.Stock != domain.DefaultStock {
		t.Errorf("expected default stock, got %d", line.Stock)
	}
	if line.Variant != domain.DefaultVariant {
		t.Errorf("expected default variant, got %q", line.Variant)
	}
	if line.Image != domain.PlaceholderImage {
		t.Errorf("expected placeholder image, got %q", line.Image)
	}
	if !line.Selected {
		t.Error("expected new lines to arrive selected")
	}
}

func TestCartServiceGetCartZeroesNegativePrice(t *testing.T) {
	// A stored document edited out of band can carry any value.
	repo := &stubCartRepository{cart: domain.Cart{
		SessionID: "sess-1",
		Items: []domain.LineItem{
			{ProductID: 1, Name: "Áo thun", Price: -100000, Quantity: 2, Stock: 5, Selected: true},
		},
	}}
	service := newTestCartService(t, repo)

	cart, err := service.GetCart(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetCart returned error: %v", err)
	}
	if cart.Items[0].Price != 0 {
		t.Errorf("expected negative price zeroed, got %d", cart.Items[0].Price)
	}

	summary, err := service.Summary(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Subtotal != 0 {
		t.Errorf("expected zero subtotal, got %d", summary.Subtotal)
	}
}

func TestCartServiceSetQuantityParsesLeniently(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"3", 3},
		{"", 1},
		{"abc", 1},
		{"-2", 1},
		{"0", 1},
		{"99", 5},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("raw=%q", tc.raw), func(t *testing.T) {
			repo := &stubCartRepository{cart: domain.Cart{Items: []domain.LineItem{
				{ProductID: 1, Name: "Áo thun", Price: 120000, Quantity: 2, Stock: 5},
			}}}
			service := newTestCartService(t, repo)

			cart, err := service.SetQuantity(context.Background(), SetQuantityCommand{
				SessionID:   "sess-1",
				ProductID:   1,
				RawQuantity: tc.raw,
			})
			if err != nil {
				t.Fatalf("SetQuantity returned error: %v", err)
			}
			if got := cart.Items[0].Quantity; got != tc.want {
				t.Errorf("expected quantity %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCartServiceSetQuantityUnknownItem(t *testing.T) {
	repo := &stubCartRepository{}
	service := newTestCartService(t, repo)

	_, err := service.SetQuantity(context.Background(), SetQuantityCommand{
		SessionID:   "sess-1",
		ProductID:   42,
		RawQuantity: "2",
	})
	if !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceAdjustQuantityClampsAtBounds(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{Items: []domain.LineItem{
		{ProductID: 1, Name: "Áo thun", Price: 120000, Quantity: 1, Stock: 3},
	}}}
	service := newTestCartService(t, repo)

	// Stepping below the floor keeps quantity at 1.
	cart, err := service.AdjustQuantity(context.Background(), AdjustQuantityCommand{
		SessionID: "sess-1", ProductID: 1, Delta: -1,
	})
	if err != nil {
		t.Fatalf("AdjustQuantity returned error: %v", err)
	}
	if cart.Items[0].Quantity != 1 {
		t.Errorf("expected floor 1, got %d", cart.Items[0].Quantity)
	}

	// Stepping past the ceiling stops at stock.
	for i := 0; i < 5; i++ {
		cart, err = service.AdjustQuantity(context.Background(), AdjustQuantityCommand{
			SessionID: "sess-1", ProductID: 1, Delta: 1,
		})
		if err != nil {
			t.Fatalf("AdjustQuantity returned error: %v", err)
		}
	}
	if cart.Items[0].Quantity != 3 {
		t.Errorf("expected ceiling 3, got %d", cart.Items[0].Quantity)
	}
}

func TestCartServiceRemoveItem(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{Items: []domain.LineItem{
		{ProductID: 1, Name: "A", Price: 100, Quantity: 1, Stock: 5},
		{ProductID: 2, Name: "B", Price: 100, Quantity: 1, Stock: 5},
		{ProductID: 3, Name: "C", Price: 100, Quantity: 1, Stock: 5},
	}}}
	service := newTestCartService(t, repo)

	cart, err := service.RemoveItem(context.Background(), "sess-1", 2)
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(cart.Items))
	}
	if cart.Items[0].ProductID != 1 || cart.Items[1].ProductID != 3 {
		t.Errorf("unexpected remaining ids %d, %d", cart.Items[0].ProductID, cart.Items[1].ProductID)
	}

	if _, err := service.RemoveItem(context.Background(), "sess-1", 99); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound for unknown id, got %v", err)
	}
}

func TestCartServiceRemoveItemsIgnoresUnknownIDs(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{Items: []domain.LineItem{
		{ProductID: 1, Name: "A", Price: 100, Quantity: 1, Stock: 5},
		{ProductID: 2, Name: "B", Price: 100, Quantity: 1, Stock: 5},
	}}}
	service := newTestCartService(t, repo)

	cart, err := service.RemoveItems(context.Background(), "sess-1", []int{2, 99})
	if err != nil {
		t.Fatalf("RemoveItems returned error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != 1 {
		t.Fatalf("expected only product 1 to remain, got %+v", cart.Items)
	}
}

func TestCartServiceSelectionAndSummary(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{Items: []domain.LineItem{
		{ProductID: 1, Name: "A", Price: 100000, Quantity: 2, Stock: 5, Selected: true},
		{ProductID: 2, Name: "B", Price: 50000, Quantity: 3, Stock: 5, Selected: true},
	}}}
	service := newTestCartService(t, repo)

	if _, err := service.SetSelected(context.Background(), SetSelectedCommand{
		SessionID: "sess-1", ProductID: 2, Selected: false,
	}); err != nil {
		t.Fatalf("SetSelected returned error: %v", err)
	}

	summary, err := service.Summary(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.ItemCount != 5 {
		t.Errorf("expected item count 5 (summed quantities), got %d", summary.ItemCount)
	}
	if summary.SelectedCount != 2 {
		t.Errorf("expected selected count 2, got %d", summary.SelectedCount)
	}
	if summary.Subtotal != 200000 {
		t.Errorf("expected subtotal 200000, got %d", summary.Subtotal)
	}

	if _, err := service.SelectAll(context.Background(), "sess-1", true); err != nil {
		t.Fatalf("SelectAll returned error: %v", err)
	}
	summary, err = service.Summary(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.SelectedCount != 5 {
		t.Errorf("expected all quantities selected, got %d", summary.SelectedCount)
	}
}

func TestCartServiceTranslatesRepositoryErrors(t *testing.T) {
	repo := &stubCartRepository{updateErr: stubRepoError{conflict: true}}
	service := newTestCartService(t, repo)

	_, err := service.SelectAll(context.Background(), "sess-1", true)
	if !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected ErrCartConflict, got %v", err)
	}

	repo.updateErr = stubRepoError{unavailable: true}
	_, err = service.SelectAll(context.Background(), "sess-1", true)
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}
}

func TestCartServiceRequiresSessionID(t *testing.T) {
	service := newTestCartService(t, &stubCartRepository{})

	if _, err := service.GetCart(context.Background(), "  "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
	if _, err := service.Summary(context.Background(), ""); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}
