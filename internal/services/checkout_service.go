package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/vietcart/storefront/internal/domain"
	"github.com/vietcart/storefront/internal/payments"
	"github.com/vietcart/storefront/internal/repositories"
)

var (
	errCheckoutRepositoryRequired = errors.New("checkout service: checkout repository is required")
	errOrderRepositoryRequired    = errors.New("checkout service: order repository is required")
	errCheckoutCartsRequired      = errors.New("checkout service: cart repository is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutUnavailable indicates a backend failure during checkout.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrCheckoutEmpty indicates there are no lines to purchase.
var ErrCheckoutEmpty = errors.New("checkout service: nothing to purchase")

// ErrPendingOrderNotFound indicates no order is awaiting gateway confirmation.
var ErrPendingOrderNotFound = errors.New("checkout service: pending order not found")

// paymentGateway is the slice of the payments manager checkout needs.
type paymentGateway interface {
	CreatePayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentRequest) (payments.PaymentSession, error)
	VerifyReturn(paymentCtx payments.PaymentContext, params url.Values) (payments.VerifiedReturn, error)
}

// CheckoutServiceDeps wires the repositories and the payment gateway.
type CheckoutServiceDeps struct {
	Checkouts             repositories.CheckoutRepository
	Orders                repositories.OrderRepository
	Carts                 repositories.CartRepository
	Gateway               paymentGateway
	Clock                 func() time.Time
	FreeShippingThreshold int64
	FlatShippingFee       int64
	Logger                func(context.Context, string, map[string]any)
}

type checkoutService struct {
	checkouts     repositories.CheckoutRepository
	orders        repositories.OrderRepository
	carts         repositories.CartRepository
	gateway       paymentGateway
	now           func() time.Time
	freeThreshold int64
	shippingFee   int64
	sanitizer     *bluemonday.Policy
	logger        func(context.Context, string, map[string]any)
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Checkouts == nil {
		return nil, errCheckoutRepositoryRequired
	}
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	freeThreshold := deps.FreeShippingThreshold
	if freeThreshold <= 0 {
		freeThreshold = 299000
	}
	shippingFee := deps.FlatShippingFee
	if shippingFee < 0 {
		shippingFee = 30000
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		checkouts:     deps.Checkouts,
		orders:        deps.Orders,
		carts:         deps.Carts,
		gateway:       deps.Gateway,
		now:           func() time.Time { return clock().UTC() },
		freeThreshold: freeThreshold,
		shippingFee:   shippingFee,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger,
	}, nil
}

// BeginCheckout snapshots the lines being purchased. The live cart is not
// modified; the snapshot is an independent copy.
func (s *checkoutService) BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSnapshot, error) {
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return CheckoutSnapshot{}, ErrCheckoutInvalidInput
	}

	cart, err := s.loadCart(ctx, sid)
	if err != nil {
		return CheckoutSnapshot{}, err
	}

	var lines []LineItem
	if len(cmd.ProductIDs) > 0 {
		wanted := make(map[int]bool, len(cmd.ProductIDs))
		for _, id := range cmd.ProductIDs {
			wanted[id] = true
		}
		for _, line := range cart.Items {
			if wanted[line.ProductID] {
				lines = append(lines, line)
			}
		}
	} else {
		for _, line := range cart.Items {
			if line.Selected {
				lines = append(lines, line)
			}
		}
	}

	if len(lines) == 0 {
		return CheckoutSnapshot{}, ErrCheckoutEmpty
	}

	snapshot := CheckoutSnapshot{
		SessionID: sid,
		Items:     copyLines(lines),
		CreatedAt: s.now(),
	}
	if err := s.checkouts.Save(ctx, snapshot); err != nil {
		return CheckoutSnapshot{}, s.translateRepoError(err)
	}
	return snapshot, nil
}

// LoadCheckout returns the stored snapshot, falling back to the currently
// selected cart lines when no snapshot exists. An empty checkout is not an
// error.
func (s *checkoutService) LoadCheckout(ctx context.Context, sessionID string) (CheckoutSnapshot, CheckoutTotals, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return CheckoutSnapshot{}, CheckoutTotals{}, ErrCheckoutInvalidInput
	}

	snapshot, err := s.checkouts.Get(ctx, sid)
	if err != nil {
		if !isRepoNotFound(err) {
			return CheckoutSnapshot{}, CheckoutTotals{}, s.translateRepoError(err)
		}
		cart, cartErr := s.loadCart(ctx, sid)
		if cartErr != nil {
			return CheckoutSnapshot{}, CheckoutTotals{}, cartErr
		}
		snapshot = CheckoutSnapshot{SessionID: sid, Items: []LineItem{}}
		for _, line := range cart.Items {
			if line.Selected {
				snapshot.Items = append(snapshot.Items, line)
			}
		}
	}
	if snapshot.Items == nil {
		snapshot.Items = []LineItem{}
	}

	return snapshot, s.Totals(snapshot.Items), nil
}

// Totals computes the amount due in VND. Orders at or above the free
// shipping threshold ship free, everything else pays the flat fee.
func (s *checkoutService) Totals(items []LineItem) CheckoutTotals {
	var subtotal int64
	for _, line := range items {
		subtotal += line.Subtotal()
	}

	var shipping int64
	if subtotal < s.freeThreshold {
		shipping = s.shippingFee
	}

	return CheckoutTotals{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Discount:    0,
		Total:       subtotal + shipping,
	}
}

// ValidatePhone accepts a number iff exactly ten digits remain after
// stripping every non-digit rune.
func (s *checkoutService) ValidatePhone(raw string) bool {
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits == domain.PhoneDigits
}

// ListBanks returns the gateway bank directory, optionally filtered by name.
func (s *checkoutService) ListBanks(filter string) []Bank {
	return listBanks(filter)
}

// LookupBank resolves a gateway bank code.
func (s *checkoutService) LookupBank(code string) (Bank, bool) {
	return lookupBank(code)
}

// PlaceOrder validates the buyer details and either redirects to the payment
// gateway or records the order locally. Gateway failures never lose the
// order: it is recorded with a payment-failed status instead.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderResult, error) {
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return OrderResult{}, ErrCheckoutInvalidInput
	}

	customer, err := s.validateCustomer(cmd.Customer)
	if err != nil {
		return OrderResult{}, err
	}

	method := strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	switch method {
	case domain.PaymentMethodVNPay, domain.PaymentMethodCOD:
	default:
		return OrderResult{}, fmt.Errorf("%w: unknown payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}

	bankCode := strings.TrimSpace(cmd.BankCode)
	if bankCode == "" && method == domain.PaymentMethodVNPay {
		return OrderResult{}, fmt.Errorf("%w: bank transfer requires a bank code", ErrCheckoutInvalidInput)
	}
	if bankCode != "" {
		bank, ok := lookupBank(bankCode)
		if !ok {
			return OrderResult{}, fmt.Errorf("%w: unknown bank code %q", ErrCheckoutInvalidInput, cmd.BankCode)
		}
		bankCode = bank.Code
	}

	snapshot, totals, err := s.LoadCheckout(ctx, sid)
	if err != nil {
		return OrderResult{}, err
	}
	if len(snapshot.Items) == 0 {
		return OrderResult{}, ErrCheckoutEmpty
	}

	now := s.now()
	order := Order{
		ID:            domain.OrderIDPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		SessionID:     sid,
		Items:         copyLines(snapshot.Items),
		Totals:        totals,
		Customer:      customer,
		PaymentMethod: method,
		BankCode:      bankCode,
		Status:        domain.OrderStatusPending,
		PlacedAt:      now,
	}

	if method == domain.PaymentMethodVNPay && s.gateway != nil {
		session, payErr := s.gateway.CreatePayment(ctx, payments.PaymentContext{PreferredProvider: domain.PaymentMethodVNPay}, payments.PaymentRequest{
			OrderID:  order.ID,
			Amount:   totals.Total,
			BankCode: bankCode,
			ClientIP: strings.TrimSpace(cmd.ClientIP),
		})
		if payErr == nil {
			pending := PendingOrder{
				Order:       order,
				PaymentRef:  session.Reference,
				RedirectURL: session.RedirectURL,
				ExpiresAt:   session.ExpiresAt,
			}
			if err := s.orders.SavePending(ctx, pending); err != nil {
				return OrderResult{}, s.translateRepoError(err)
			}
			return OrderResult{Order: order, Pending: true, RedirectURL: session.RedirectURL}, nil
		}
		s.logger(ctx, "checkout.gateway_create_failed", map[string]any{
			"order_id": order.ID,
			"error":    payErr.Error(),
		})
		order.Status = domain.OrderStatusPayFailed
	} else {
		order.Status = domain.OrderStatusPlaced
		if method == domain.PaymentMethodVNPay {
			// Gateway disabled; fall back to a local record.
			order.Status = domain.OrderStatusPayFailed
		}
	}

	if err := s.finalizeOrder(ctx, order); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{Order: order}, nil
}

// ConfirmReturn resolves the pending order from gateway return or IPN
// parameters. The pending record is consumed either way.
func (s *checkoutService) ConfirmReturn(ctx context.Context, cmd ConfirmReturnCommand) (Order, error) {
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return Order{}, ErrCheckoutInvalidInput
	}
	if s.gateway == nil {
		return Order{}, ErrCheckoutUnavailable
	}

	pending, err := s.orders.GetPending(ctx, sid)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrPendingOrderNotFound
		}
		return Order{}, s.translateRepoError(err)
	}

	verified, err := s.gateway.VerifyReturn(payments.PaymentContext{PreferredProvider: domain.PaymentMethodVNPay}, url.Values(cmd.Params))
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	order := pending.Order
	paid := verified.Valid && verified.Succeeded &&
		verified.OrderID == order.ID &&
		verified.Amount == order.Totals.Total
	if paid {
		order.Status = domain.OrderStatusPaid
	} else {
		order.Status = domain.OrderStatusPayFailed
		s.logger(ctx, "checkout.payment_not_confirmed", map[string]any{
			"order_id":      order.ID,
			"valid":         verified.Valid,
			"response_code": verified.ResponseCode,
		})
	}

	if err := s.finalizeOrder(ctx, order); err != nil {
		return Order{}, err
	}
	if err := s.orders.DeletePending(ctx, sid); err != nil && !isRepoNotFound(err) {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// ListOrders returns the session's order history, newest last.
func (s *checkoutService) ListOrders(ctx context.Context, sessionID string) ([]Order, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil, ErrCheckoutInvalidInput
	}

	orders, err := s.orders.List(ctx, sid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

// finalizeOrder appends the order, removes the purchased lines from the
// live cart and drops the snapshot. Unrelated cart lines survive.
func (s *checkoutService) finalizeOrder(ctx context.Context, order Order) error {
	if err := s.orders.Append(ctx, order); err != nil {
		return s.translateRepoError(err)
	}

	purchased := make(map[int]bool, len(order.Items))
	for _, line := range order.Items {
		purchased[line.ProductID] = true
	}
	if _, err := s.carts.Update(ctx, order.SessionID, func(cart domain.Cart) (domain.Cart, error) {
		kept := cart.Items[:0]
		for _, line := range cart.Items {
			if !purchased[line.ProductID] {
				kept = append(kept, line)
			}
		}
		cart.Items = kept
		return cart, nil
	}); err != nil {
		return s.translateRepoError(err)
	}

	if err := s.checkouts.Delete(ctx, order.SessionID); err != nil && !isRepoNotFound(err) {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *checkoutService) validateCustomer(customer CustomerInfo) (CustomerInfo, error) {
	customer.FullName = strings.TrimSpace(s.sanitizer.Sanitize(customer.FullName))
	customer.Address = strings.TrimSpace(s.sanitizer.Sanitize(customer.Address))
	customer.Note = strings.TrimSpace(s.sanitizer.Sanitize(customer.Note))
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Phone = strings.TrimSpace(customer.Phone)

	if customer.FullName == "" {
		return CustomerInfo{}, fmt.Errorf("%w: full name is required", ErrCheckoutInvalidInput)
	}
	if customer.Address == "" {
		return CustomerInfo{}, fmt.Errorf("%w: address is required", ErrCheckoutInvalidInput)
	}
	if !s.ValidatePhone(customer.Phone) {
		return CustomerInfo{}, fmt.Errorf("%w: phone must contain exactly %d digits", ErrCheckoutInvalidInput, domain.PhoneDigits)
	}
	return customer, nil
}

func (s *checkoutService) loadCart(ctx context.Context, sessionID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return emptyCart(sessionID), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return normalizeCart(cart, sessionID), nil
}

func (s *checkoutService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrPendingOrderNotFound
	}
	return ErrCheckoutUnavailable
}

func copyLines(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
