package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/requestctx"
	"github.com/storefront/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes checkout, payment verification and admin order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
	verifyLimit rateLimiter
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderIdempotency guards the order creation endpoints with the given middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithVerifyRateLimit caps payment verification attempts per user within window.
func WithVerifyRateLimit(limit int, window time.Duration) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.verifyLimit = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser())
	}

	r.Group(func(create chi.Router) {
		if h.idempotency != nil {
			create.Use(h.idempotency)
		}
		create.Post("/place", h.placeCOD)
		create.Post("/razorpay", h.placeGateway)
	})
	r.With(limitPerUser(h.verifyLimit)).Post("/verifyRazorpay", h.verifyPayment)
	r.Post("/userorders", h.listUserOrders)

	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireAdmin())
		admin.Post("/status", h.updateStatus)
		admin.Post("/paymentstatus", h.updatePayment)
		admin.Post("/list", h.listAllOrders)
		admin.Get("/invoice/{orderId}", h.downloadInvoice)
	})
}

type orderItemRequest struct {
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	Code      string   `json:"code"`
	Image     string   `json:"image"`
	Color     string   `json:"color"`
	Fabric    string   `json:"fabric"`
	Type      string   `json:"type"`
	Size      []string `json:"size"`
	Price     float64  `json:"price"`
	Quantity  int      `json:"quantity"`
}

type addressRequest struct {
	FullName    string `json:"fullName"`
	Phone       string `json:"phone"`
	Pincode     string `json:"pincode"`
	State       string `json:"state"`
	City        string `json:"city"`
	AddressLine string `json:"addressLine"`
	Landmark    string `json:"landmark"`
}

type placeOrderRequest struct {
	Items   []orderItemRequest `json:"items"`
	Amount  float64            `json:"amount"`
	Address addressRequest     `json:"address"`
}

// verifyPaymentRequest accepts both the checkout widget field names and the camelCase aliases.
type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	GatewayOrderID    string `json:"gatewayOrderId"`
	GatewayPaymentID  string `json:"gatewayPaymentId"`
	Signature         string `json:"signature"`
}

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type updatePaymentRequest struct {
	OrderID string `json:"orderId"`
	Payment *bool  `json:"payment"`
}

func (h *OrderHandlers) placeCOD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req, false) {
		return
	}

	order, err := h.orders.PlaceCOD(ctx, buildPlaceOrderCommand(identity, req))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	requestctx.SetOrderID(ctx, order.ID)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order placed successfully (COD)",
		"order":   buildOrderPayload(order),
	})
}

func (h *OrderHandlers) placeGateway(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req, false) {
		return
	}

	checkout, err := h.orders.PlaceGateway(ctx, buildPlaceOrderCommand(identity, req))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	requestctx.SetOrderID(ctx, checkout.Order.ID)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"orderId": checkout.Order.ID,
		"order":   checkout.Intent,
	})
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req, false) {
		return
	}

	cmd := services.VerifyPaymentCommand{
		GatewayOrderID:   firstNonEmpty(req.RazorpayOrderID, req.GatewayOrderID),
		GatewayPaymentID: firstNonEmpty(req.RazorpayPaymentID, req.GatewayPaymentID),
		Signature:        firstPresent(req.RazorpaySignature, req.Signature),
	}
	result, err := h.payments.Verify(ctx, cmd)
	if err != nil {
		if errors.Is(err, services.ErrPaymentVerificationFailed) {
			// Mismatched signatures keep the historical 200 + success:false contract.
			writeJSONResponse(w, http.StatusOK, map[string]any{
				"success": false,
				"message": "Payment verification failed",
			})
			return
		}
		writeOrderError(ctx, w, err)
		return
	}
	requestctx.SetOrderID(ctx, result.Order.ID)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Payment successful",
	})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	var req updateStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req, false) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Status:  req.Status,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	requestctx.SetOrderID(ctx, order.ID)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order status updated",
		"order":   buildOrderPayload(order),
	})
}

func (h *OrderHandlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	var req updatePaymentRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req, false) {
		return
	}
	if req.Payment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment must be a boolean", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdatePayment(ctx, services.UpdatePaymentFlagCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Payment: *req.Payment,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	requestctx.SetOrderID(ctx, order.ID)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Payment status updated",
		"order":   buildOrderPayload(order),
	})
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	orders, err := h.orders.ListAll(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  buildOrderPayloads(orders),
	})
}

func (h *OrderHandlers) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orders, err := h.orders.ListForUser(ctx, identity.UserID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  buildOrderPayloads(orders),
	})
}

func (h *OrderHandlers) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	doc, err := h.orders.RenderInvoice(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	filename := doc.Filename
	if filename == "" {
		filename = "invoice-" + orderID + ".pdf"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func buildPlaceOrderCommand(identity *auth.Identity, req placeOrderRequest) services.PlaceOrderCommand {
	items := make([]services.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Code:      item.Code,
			Image:     item.Image,
			Color:     item.Color,
			Fabric:    firstNonEmpty(item.Fabric, item.Type),
			Sizes:     item.Size,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return services.PlaceOrderCommand{
		UserID: identity.UserID,
		Email:  identity.Email(),
		Items:  items,
		Amount: req.Amount,
		Address: services.Address{
			FullName:    req.Address.FullName,
			Phone:       req.Address.Phone,
			Pincode:     req.Address.Pincode,
			State:       req.Address.State,
			City:        req.Address.City,
			AddressLine: req.Address.AddressLine,
			Landmark:    req.Address.Landmark,
		},
	}
}

type orderItemPayload struct {
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	Code      string   `json:"code,omitempty"`
	Image     string   `json:"image,omitempty"`
	Color     string   `json:"color,omitempty"`
	Fabric    string   `json:"fabric,omitempty"`
	Size      []string `json:"size"`
	Price     float64  `json:"price"`
	Quantity  int      `json:"quantity"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"orderNumber"`
	UserID        string             `json:"userId"`
	Items         []orderItemPayload `json:"items"`
	Amount        float64            `json:"amount"`
	Address       addressRequest     `json:"address"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"paymentMethod"`
	Payment       bool               `json:"payment"`
	PaymentID     string             `json:"paymentId,omitempty"`
	ReviewedItems []string           `json:"reviewedItems"`
	Customer      *customerPayload   `json:"customer,omitempty"`
	CreatedAt     string             `json:"createdAt,omitempty"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		sizes := item.Sizes
		if sizes == nil {
			sizes = []string{}
		}
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Code:      item.Code,
			Image:     item.Image,
			Color:     item.Color,
			Fabric:    item.Fabric,
			Size:      sizes,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	reviewed := order.ReviewedItems
	if reviewed == nil {
		reviewed = []string{}
	}
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.DisplayNumber(),
		UserID:      order.UserID,
		Items:       items,
		Amount:      order.Amount,
		Address: addressRequest{
			FullName:    order.Address.FullName,
			Phone:       order.Address.Phone,
			Pincode:     order.Address.Pincode,
			State:       order.Address.State,
			City:        order.Address.City,
			AddressLine: order.Address.AddressLine,
			Landmark:    order.Address.Landmark,
		},
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Payment:       order.Payment,
		PaymentID:     order.PaymentID,
		ReviewedItems: reviewed,
		Customer:      buildCustomerPayload(order.Customer),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func buildCustomerPayload(customer *domain.Customer) *customerPayload {
	if customer == nil {
		return nil
	}
	return &customerPayload{Name: customer.Name, Email: customer.Email}
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	result := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		result = append(result, buildOrderPayload(order))
	}
	return result
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_order", "Duplicate order detected. Please wait before placing the same order again.", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_not_configured", "Payment gateway is not configured", http.StatusNotImplemented))
	case writeRepositoryError(ctx, w, err):
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", err.Error(), http.StatusInternalServerError))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// firstPresent is firstNonEmpty without trimming; signatures are compared as sent.
func firstPresent(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
