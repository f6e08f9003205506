package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vietcart/storefront/internal/services"
)

// OrderHandlers exposes the per-session order history.
type OrderHandlers struct {
	checkout services.CheckoutService
}

func NewOrderHandlers(checkout services.CheckoutService) *OrderHandlers {
	return &OrderHandlers{checkout: checkout}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := requireSession(ctx, w, r)
	if !ok {
		return
	}

	orders, err := h.checkout.ListOrders(ctx, sid)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items})
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}
