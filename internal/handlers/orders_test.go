package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/services"
)

func newOrderRouter(orders services.OrderService, pays services.PaymentService, opts ...OrderHandlerOption) chi.Router {
	h := NewOrderHandlers(nil, orders, pays, opts...)
	router := chi.NewRouter()
	router.Route("/order", h.Routes)
	return router
}

func placeBody() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"productId": "P1", "name": "Kurta", "code": "RC", "type": "Silk", "size": []string{"M"}, "price": 500, "quantity": 2},
		},
		"amount": 1000,
		"address": map[string]any{
			"fullName": "Asha", "phone": "9999999999", "pincode": "560001",
			"state": "KA", "city": "Bengaluru", "addressLine": "1 MG Road",
		},
	}
}

func TestOrderHandlersPlaceCOD(t *testing.T) {
	var captured services.PlaceOrderCommand
	svc := &stubOrderService{
		placeCODFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            "ord_1",
				OrderNumber:   "ORD-240301-000001",
				UserID:        cmd.UserID,
				Items:         cmd.Items,
				Amount:        cmd.Amount,
				Status:        domain.OrderStatusPlaced,
				PaymentMethod: domain.PaymentMethodCOD,
			}, nil
		},
	}
	router := newOrderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/place", placeBody()), "u1", "user"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "u1" || captured.Email != "u1@example.com" || captured.Amount != 1000 {
		t.Fatalf("unexpected command %+v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].Fabric != "Silk" || captured.Items[0].Sizes[0] != "M" {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.Address.City != "Bengaluru" {
		t.Fatalf("unexpected address %+v", captured.Address)
	}

	body := decodeBody(t, rr)
	order, ok := body["order"].(map[string]any)
	if body["success"] != true || !ok {
		t.Fatalf("unexpected body %v", body)
	}
	if order["status"] != "Order Placed" || order["paymentMethod"] != "COD" || order["payment"] != false {
		t.Fatalf("unexpected order payload %v", order)
	}
}

func TestOrderHandlersPlaceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: items are required", services.ErrOrderInvalidInput), http.StatusBadRequest},
		{"duplicate", services.ErrOrderDuplicate, http.StatusConflict},
		{"unavailable", fmt.Errorf("order: repository unavailable: %w", stubRepoError{unavailable: true}), http.StatusServiceUnavailable},
		{"gateway", services.ErrPaymentGatewayUnavailable, http.StatusNotImplemented},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				placeGatewayFn: func(context.Context, services.PlaceOrderCommand) (services.GatewayCheckout, error) {
					return services.GatewayCheckout{}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			newOrderRouter(svc, nil).ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/razorpay", placeBody()), "u1", "user"))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if body := decodeBody(t, rr); body["success"] != false {
				t.Fatalf("expected success=false, got %v", body)
			}
		})
	}
}

func TestOrderHandlersUnexpectedErrorPassesMessageThrough(t *testing.T) {
	svc := &stubOrderService{
		placeCODFn: func(context.Context, services.PlaceOrderCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("order: encode address: unsupported value")
		},
	}
	rr := httptest.NewRecorder()
	newOrderRouter(svc, nil).ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/place", placeBody()), "u1", "user"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["message"] != "order: encode address: unsupported value" || body["error"] != "order_error" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestOrderHandlersPlaceGatewayReturnsIntent(t *testing.T) {
	svc := &stubOrderService{
		placeGatewayFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.GatewayCheckout, error) {
			return services.GatewayCheckout{
				Order:  services.Order{ID: "ord_9", Status: domain.OrderStatusPaymentPending},
				Intent: payments.GatewayOrder{ID: "order_rzp", Amount: 100000, Currency: "INR", Receipt: "ord_9"},
			}, nil
		},
	}
	rr := httptest.NewRecorder()
	newOrderRouter(svc, nil).ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/razorpay", placeBody()), "u1", "user"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	intent, _ := body["order"].(map[string]any)
	if intent["id"] != "order_rzp" || intent["receipt"] != "ord_9" || intent["amount"] != float64(100000) {
		t.Fatalf("unexpected intent %v", intent)
	}
	if body["orderId"] != "ord_9" {
		t.Fatalf("expected local order id, got %v", body["orderId"])
	}
}

func TestOrderHandlersRejectsMalformedBody(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}, nil).ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/place", "{not json"), "u1", "user"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}, nil).ServeHTTP(rr, jsonRequest(t, http.MethodPost, "/order/place", placeBody()))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestOrderHandlersVerifyPayment(t *testing.T) {
	var captured services.VerifyPaymentCommand
	pays := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
			captured = cmd
			if cmd.Signature != "good" {
				return services.VerifyPaymentResult{}, services.ErrPaymentVerificationFailed
			}
			return services.VerifyPaymentResult{Verified: true}, nil
		},
	}
	router := newOrderRouter(&stubOrderService{}, pays)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/verifyRazorpay", map[string]string{
		"razorpay_order_id":   "order_rzp",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "good",
	}), "u1", "user"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["success"] != true || body["message"] != "Payment successful" {
		t.Fatalf("unexpected body %v", body)
	}
	if captured.GatewayOrderID != "order_rzp" || captured.GatewayPaymentID != "pay_1" {
		t.Fatalf("unexpected command %+v", captured)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/verifyRazorpay", map[string]string{
		"gatewayOrderId":   "order_rzp",
		"gatewayPaymentId": "pay_1",
		"signature":        "tampered",
	}), "u1", "user"))
	if rr.Code != http.StatusOK {
		t.Fatalf("signature mismatch keeps 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["success"] != false || body["message"] != "Payment verification failed" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/verifyRazorpay", map[string]string{
		"razorpay_order_id":   "order_rzp",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  " good ",
	}), "u1", "user"))
	if captured.Signature != " good " {
		t.Fatalf("signature must reach the verifier untrimmed, got %q", captured.Signature)
	}
	if body := decodeBody(t, rr); body["success"] != false {
		t.Fatalf("padded signature must not verify, got %v", body)
	}
}

func TestOrderHandlersVerifyRateLimit(t *testing.T) {
	pays := &stubPaymentService{
		verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
			return services.VerifyPaymentResult{Verified: true}, nil
		},
	}
	router := newOrderRouter(&stubOrderService{}, pays, WithVerifyRateLimit(1, time.Minute))
	body := map[string]string{"razorpay_order_id": "o", "razorpay_payment_id": "p", "razorpay_signature": "s"}

	first := httptest.NewRecorder()
	router.ServeHTTP(first, withUser(jsonRequest(t, http.MethodPost, "/order/verifyRazorpay", body), "u1", "user"))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, withUser(jsonRequest(t, http.MethodPost, "/order/verifyRazorpay", body), "u1", "user"))
	other := httptest.NewRecorder()
	router.ServeHTTP(other, withUser(jsonRequest(t, http.MethodPost, "/order/verifyRazorpay", body), "u2", "user"))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests || other.Code != http.StatusOK {
		t.Fatalf("unexpected statuses %d %d %d", first.Code, second.Code, other.Code)
	}
}

func TestOrderHandlersAdminEndpointsRequireAdmin(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil)

	for _, path := range []string{"/order/status", "/order/paymentstatus", "/order/list"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, path, map[string]any{}), "u1", "user"))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rr.Code)
		}
		if body := decodeBody(t, rr); body["message"] != "Admin access only" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	svc := &stubOrderService{
		updateStatusFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			if _, ok := domain.ParseAdminStatus(cmd.Status); !ok {
				return services.Order{}, fmt.Errorf("%w: invalid status %q", services.ErrOrderInvalidInput, cmd.Status)
			}
			if cmd.OrderID == "missing" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatus(cmd.Status)}, nil
		},
	}
	router := newOrderRouter(svc, nil)

	cases := []struct {
		orderID string
		status  string
		want    int
	}{
		{"ord_1", "Delivered", http.StatusOK},
		{"ord_1", "Shipped", http.StatusBadRequest},
		{"missing", "Dispatched", http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/status", map[string]string{
			"orderId": tc.orderID, "status": tc.status,
		}), "admin1", "admin"))
		if rr.Code != tc.want {
			t.Fatalf("%s/%s: expected %d, got %d", tc.orderID, tc.status, tc.want, rr.Code)
		}
	}
}

func TestOrderHandlersUpdatePayment(t *testing.T) {
	var captured services.UpdatePaymentFlagCommand
	svc := &stubOrderService{
		updatePaymentFn: func(_ context.Context, cmd services.UpdatePaymentFlagCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Payment: cmd.Payment}, nil
		},
	}
	router := newOrderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/paymentstatus", map[string]any{"orderId": "ord_1", "payment": true}), "admin1", "admin"))
	if rr.Code != http.StatusOK || !captured.Payment || captured.OrderID != "ord_1" {
		t.Fatalf("unexpected result %d %+v", rr.Code, captured)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(jsonRequest(t, http.MethodPost, "/order/paymentstatus", map[string]any{"orderId": "ord_1"}), "admin1", "admin"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when payment flag missing, got %d", rr.Code)
	}
}

func TestOrderHandlersListings(t *testing.T) {
	svc := &stubOrderService{
		listAllFn: func(context.Context) ([]services.Order, error) {
			return []services.Order{{ID: "b", Customer: &domain.Customer{Name: "Asha", Email: "asha@example.com"}}, {ID: "a"}}, nil
		},
		listForUserFn: func(_ context.Context, userID string) ([]services.Order, error) {
			return []services.Order{{ID: "mine", UserID: userID}}, nil
		},
	}
	router := newOrderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/order/list", nil), "admin1", "admin"))
	body := decodeBody(t, rr)
	orders, _ := body["orders"].([]any)
	if rr.Code != http.StatusOK || len(orders) != 2 {
		t.Fatalf("unexpected admin list %d %v", rr.Code, body)
	}
	customer, _ := orders[0].(map[string]any)["customer"].(map[string]any)
	if customer["name"] != "Asha" || customer["email"] != "asha@example.com" {
		t.Fatalf("expected joined customer, got %v", orders[0])
	}
	if _, ok := orders[1].(map[string]any)["customer"]; ok {
		t.Fatalf("orders without an account must omit customer, got %v", orders[1])
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/order/userorders", nil), "u1", "user"))
	body = decodeBody(t, rr)
	orders, _ = body["orders"].([]any)
	if rr.Code != http.StatusOK || len(orders) != 1 {
		t.Fatalf("unexpected user list %d %v", rr.Code, body)
	}
	if first := orders[0].(map[string]any); first["userId"] != "u1" {
		t.Fatalf("unexpected order %v", first)
	}
}

func TestOrderHandlersInvoice(t *testing.T) {
	svc := &stubOrderService{
		invoiceFn: func(_ context.Context, orderID string) (services.InvoiceDocument, error) {
			if orderID != "ord_1" {
				return services.InvoiceDocument{}, services.ErrOrderNotFound
			}
			return services.InvoiceDocument{Filename: "invoice-ORD-1.pdf", Content: []byte("%PDF-1.3 test")}, nil
		},
	}
	router := newOrderRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/order/invoice/ord_1", nil), "admin1", "admin"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="invoice-ORD-1.pdf"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if rr.Body.String() != "%PDF-1.3 test" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/order/invoice/nope", nil), "admin1", "admin"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
