package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietcart/storefront/internal/platform/httpx"
	"github.com/vietcart/storefront/internal/platform/observability"
	"github.com/vietcart/storefront/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers exposes the checkout snapshot, order placement and
// payment gateway callback endpoints.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.beginCheckout)
	r.Get("/", h.loadCheckout)
	r.Post("/order", h.placeOrder)
	r.Get("/banks", h.listBanks)
	r.Get("/return", h.confirmReturn)
	r.Post("/ipn", h.handleIPN)
}

type beginCheckoutRequest struct {
	ProductIDs []int `json:"product_ids"`
}

func (h *CheckoutHandlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	var req beginCheckoutRequest
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := decodeStrict(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	snapshot, err := h.checkout.BeginCheckout(ctx, services.BeginCheckoutCommand{
		SessionID:  sid,
		ProductIDs: req.ProductIDs,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	totals := h.checkout.Totals(snapshot.Items)
	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Checkout: buildCheckoutPayload(snapshot, totals),
	})
}

func (h *CheckoutHandlers) loadCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	snapshot, totals, err := h.checkout.LoadCheckout(ctx, sid)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{
		Checkout: buildCheckoutPayload(snapshot, totals),
	})
}

type placeOrderRequest struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Note          string `json:"note"`
	PaymentMethod string `json:"payment_method"`
	BankCode      string `json:"bank_code"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req placeOrderRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		SessionID: sid,
		Customer: services.CustomerInfo{
			FullName: req.FullName,
			Phone:    req.Phone,
			Email:    req.Email,
			Address:  req.Address,
			Note:     req.Note,
		},
		PaymentMethod: req.PaymentMethod,
		BankCode:      req.BankCode,
		ClientIP:      clientIP(r),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	if result.Pending {
		writeJSONResponse(w, http.StatusAccepted, orderPendingResponse{
			OrderID:     result.Order.ID,
			RedirectURL: result.RedirectURL,
		})
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(result.Order)})
}

func (h *CheckoutHandlers) listBanks(w http.ResponseWriter, r *http.Request) {
	banks := h.checkout.ListBanks(strings.TrimSpace(r.URL.Query().Get("q")))

	items := make([]bankPayload, 0, len(banks))
	for _, bank := range banks {
		items = append(items, bankPayload{
			Code:    bank.Code,
			Name:    bank.Name,
			LogoURL: bank.LogoURL,
		})
	}
	writeJSONResponse(w, http.StatusOK, bankListResponse{Items: items})
}

// confirmReturn handles the buyer's redirect back from the payment
// gateway. The browser arrives without the session header, so the
// session may come in as a query parameter instead.
func (h *CheckoutHandlers) confirmReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := gatewaySession(r)
	if sid == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "session identifier is required", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.ConfirmReturn(ctx, services.ConfirmReturnCommand{
		SessionID: sid,
		Params:    r.URL.Query(),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// handleIPN processes the gateway's server-to-server notification. The
// response codes follow the gateway contract, so the endpoint always
// answers 200 with a coded body.
func (h *CheckoutHandlers) handleIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := gatewaySession(r)
	if sid == "" {
		writeJSONResponse(w, http.StatusOK, ipnResponse{RspCode: "99", Message: "Missing session"})
		return
	}

	_, err := h.checkout.ConfirmReturn(ctx, services.ConfirmReturnCommand{
		SessionID: sid,
		Params:    r.URL.Query(),
	})
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, ipnResponse{RspCode: "00", Message: "Confirm Success"})
	case errors.Is(err, services.ErrPendingOrderNotFound):
		writeJSONResponse(w, http.StatusOK, ipnResponse{RspCode: "01", Message: "Order not found"})
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		writeJSONResponse(w, http.StatusOK, ipnResponse{RspCode: "97", Message: "Invalid parameters"})
	default:
		writeJSONResponse(w, http.StatusOK, ipnResponse{RspCode: "99", Message: "Unknown error"})
	}
}

func gatewaySession(r *http.Request) string {
	sid := strings.TrimSpace(r.Header.Get(observability.SessionHeader))
	if sid == "" {
		sid = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if !validSessionID(sid) {
		return ""
	}
	return sid
}

func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx >= 0 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_empty", "no items selected for checkout", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPendingOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("pending_order_not_found", "no pending order for this session", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout operation failed", http.StatusInternalServerError))
	}
}

type checkoutResponse struct {
	Checkout checkoutPayload `json:"checkout"`
}

type checkoutPayload struct {
	SessionID string            `json:"session_id"`
	Items     []cartItemPayload `json:"items"`
	Totals    totalsPayload     `json:"totals"`
	CreatedAt string            `json:"created_at,omitempty"`
}

type totalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shipping_fee"`
	Discount    int64 `json:"discount"`
	Total       int64 `json:"total"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPendingResponse struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

type orderPayload struct {
	ID            string            `json:"id"`
	Items         []cartItemPayload `json:"items"`
	Totals        totalsPayload     `json:"totals"`
	Customer      customerPayload   `json:"customer"`
	PaymentMethod string            `json:"payment_method"`
	BankCode      string            `json:"bank_code,omitempty"`
	Status        string            `json:"status"`
	PlacedAt      string            `json:"placed_at"`
}

type customerPayload struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address"`
	Note     string `json:"note,omitempty"`
}

type bankListResponse struct {
	Items []bankPayload `json:"items"`
}

type bankPayload struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url"`
}

func buildCheckoutPayload(snapshot services.CheckoutSnapshot, totals services.CheckoutTotals) checkoutPayload {
	items := make([]cartItemPayload, 0, len(snapshot.Items))
	for _, line := range snapshot.Items {
		items = append(items, cartItemPayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Image:     line.Image,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			Stock:     line.Stock,
			Selected:  line.Selected,
			Subtotal:  line.Subtotal(),
		})
	}
	return checkoutPayload{
		SessionID: snapshot.SessionID,
		Items:     items,
		Totals:    buildTotalsPayload(totals),
		CreatedAt: formatTime(snapshot.CreatedAt),
	}
}

func buildTotalsPayload(totals services.CheckoutTotals) totalsPayload {
	return totalsPayload{
		Subtotal:    totals.Subtotal,
		ShippingFee: totals.ShippingFee,
		Discount:    totals.Discount,
		Total:       totals.Total,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]cartItemPayload, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, cartItemPayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Image:     line.Image,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			Stock:     line.Stock,
			Selected:  line.Selected,
			Subtotal:  line.Subtotal(),
		})
	}
	customer := customerPayload{
		FullName: order.Customer.FullName,
		Phone:    order.Customer.Phone,
		Email:    order.Customer.Email,
		Address:  order.Customer.Address,
		Note:     order.Customer.Note,
	}
	return orderPayload{
		ID:            order.ID,
		Items:         items,
		Totals:        buildTotalsPayload(order.Totals),
		Customer:      customer,
		PaymentMethod: order.PaymentMethod,
		BankCode:      order.BankCode,
		Status:        order.Status,
		PlacedAt:      formatTime(order.PlacedAt),
	}
}
