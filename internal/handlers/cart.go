package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const maxCartBodySize = 32 * 1024

// CartHandlers exposes the cart embedded in the authenticated account.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser())
	}
	r.Post("/add", h.addItem)
	r.Post("/update", h.updateItem)
	r.Post("/get", h.getCart)
	r.Post("/merge", h.mergeCart)
}

type addCartRequest struct {
	ItemID string `json:"itemId"`
	Color  string `json:"color"`
	Type   string `json:"type"`
	Code   string `json:"code"`
}

type updateCartRequest struct {
	ItemID   string  `json:"itemId"`
	Quantity float64 `json:"quantity"`
}

type cartLinePayload struct {
	Quantity float64 `json:"quantity"`
	Color    string  `json:"color"`
	Type     string  `json:"type"`
	Code     string  `json:"code"`
}

type mergeCartRequest struct {
	CartData json.RawMessage `json:"cartData"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.Get(ctx, identity.UserID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCartResponse(w, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req addCartRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req, false) {
		return
	}
	cart, err := h.carts.Add(ctx, services.AddCartItemCommand{
		UserID: identity.UserID,
		ItemID: req.ItemID,
		Color:  req.Color,
		Type:   req.Type,
		Code:   req.Code,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCartResponse(w, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateCartRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req, false) {
		return
	}
	cart, err := h.carts.Update(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UserID,
		ItemID:   req.ItemID,
		Quantity: clampQuantity(req.Quantity),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCartResponse(w, cart)
}

func (h *CartHandlers) mergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req mergeCartRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req, false) {
		return
	}
	raw := bytes.TrimSpace(req.CartData)
	if len(raw) == 0 || raw[0] != '{' {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartData required", http.StatusBadRequest))
		return
	}
	var lines map[string]cartLinePayload
	if err := json.Unmarshal(raw, &lines); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartData entries must be objects", http.StatusBadRequest))
		return
	}

	items := make(services.Cart, len(lines))
	for itemID, line := range lines {
		items[itemID] = services.CartLine{
			Quantity: clampQuantity(line.Quantity),
			Color:    line.Color,
			Type:     line.Type,
			Code:     line.Code,
		}
	}
	cart, err := h.carts.Merge(ctx, services.MergeCartCommand{UserID: identity.UserID, Items: items})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCartResponse(w, cart)
}

func writeCartResponse(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":  true,
		"cartData": buildCartPayload(cart),
	})
}

func buildCartPayload(cart services.Cart) map[string]cartLinePayload {
	payload := make(map[string]cartLinePayload, len(cart))
	for itemID, line := range cart {
		payload[itemID] = cartLinePayload{
			Quantity: float64(line.Quantity),
			Color:    line.Color,
			Type:     line.Type,
			Code:     line.Code,
		}
	}
	return payload
}

// clampQuantity truncates fractional quantities and bounds them to the int range.
func clampQuantity(value float64) int {
	switch {
	case math.IsNaN(value):
		return 0
	case value > math.MaxInt32:
		return math.MaxInt32
	case value < math.MinInt32:
		return math.MinInt32
	}
	return int(value)
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "User not found", http.StatusUnauthorized))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	case writeRepositoryError(ctx, w, err):
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", err.Error(), http.StatusInternalServerError))
	}
}
