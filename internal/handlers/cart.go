package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vietcart/storefront/internal/platform/httpx"
	"github.com/vietcart/storefront/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session cart endpoints.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs handlers over the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Get("/summary", h.getSummary)
	r.Get("/events", h.streamEvents)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}/quantity", h.setQuantity)
	r.Post("/items/{productID}/adjust", h.adjustQuantity)
	r.Put("/items/{productID}/selected", h.setSelected)
	r.Delete("/items/{productID}", h.removeItem)
	r.Post("/items/remove", h.removeItems)
	r.Put("/selected", h.selectAll)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, sid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	summary, err := h.carts.Summary(ctx, sid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartSummaryPayload{
		SelectedCount: summary.SelectedCount,
		ItemCount:     summary.ItemCount,
		Subtotal:      summary.Subtotal,
	})
}

// streamEvents pushes cart snapshots over server-sent events whenever
// another writer changes the session cart.
func (h *CartHandlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusNotImplemented))
		return
	}

	updates, cancel, err := h.carts.Watch(ctx, sid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case cart, open := <-updates:
			if !open {
				return
			}
			writeCartEvent(w, cart)
			flusher.Flush()
		}
	}
}

type addItemRequest struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image"`
	Variant   string `json:"variant"`
	Stock     int    `json:"stock"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req addItemRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddItemCommand{
		SessionID: sid,
		Item: services.LineItem{
			ProductID: req.ProductID,
			Name:      req.Name,
			Price:     req.Price,
			Image:     req.Image,
			Variant:   req.Variant,
			Stock:     req.Stock,
		},
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type setQuantityRequest struct {
	Quantity string `json:"quantity"`
}

func (h *CartHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req setQuantityRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.SetQuantity(ctx, services.SetQuantityCommand{
		SessionID:   sid,
		ProductID:   productID,
		RawQuantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type adjustQuantityRequest struct {
	Delta int `json:"delta"`
}

func (h *CartHandlers) adjustQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req adjustQuantityRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AdjustQuantity(ctx, services.AdjustQuantityCommand{
		SessionID: sid,
		ProductID: productID,
		Delta:     req.Delta,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type setSelectedRequest struct {
	Selected bool `json:"selected"`
}

func (h *CartHandlers) setSelected(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req setSelectedRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.SetSelected(ctx, services.SetSelectedCommand{
		SessionID: sid,
		ProductID: productID,
		Selected:  req.Selected,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) selectAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req setSelectedRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.SelectAll(ctx, sid, req.Selected)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type removeItemRequest struct {
	Confirm bool `json:"confirm"`
}

// removeItem requires an explicit confirmation flag so a stray DELETE
// cannot silently drop a line.
func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req removeItemRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if !req.Confirm {
		httpx.WriteError(ctx, w, httpx.NewError("confirmation_required", "set confirm to true to remove the item", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, sid, productID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type removeItemsRequest struct {
	ProductIDs []int `json:"product_ids"`
	Confirm    bool  `json:"confirm"`
}

func (h *CartHandlers) removeItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req removeItemsRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if !req.Confirm {
		httpx.WriteError(ctx, w, httpx.NewError("confirmation_required", "set confirm to true to remove the items", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItems(ctx, sid, req.ProductIDs)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func productIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "productID")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid product id %q", raw), http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "item not found in cart", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func writeCartEvent(w http.ResponseWriter, cart services.Cart) {
	payload, err := json.Marshal(cartResponse{Cart: buildCartPayload(cart)})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: cart\ndata: %s\n\n", payload)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	SessionID string             `json:"session_id"`
	Items     []cartItemPayload  `json:"items"`
	Summary   cartSummaryPayload `json:"summary"`
	UpdatedAt string             `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	Selected  bool   `json:"selected"`
	Subtotal  int64  `json:"subtotal"`
}

type cartSummaryPayload struct {
	SelectedCount int   `json:"selected_count"`
	ItemCount     int   `json:"item_count"`
	Subtotal      int64 `json:"subtotal"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	summary := cartSummaryPayload{}
	for _, line := range cart.Items {
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
		summary.ItemCount += line.Quantity
		if line.Selected {
			summary.SelectedCount += line.Quantity
			summary.Subtotal += line.Subtotal()
		}
	}

	return cartPayload{
		SessionID: cart.SessionID,
		Items:     items,
		Summary:   summary,
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}
