package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories/memory"
)

type paymentFixture struct {
	store      *memory.Store
	gateway    *stubGateway
	dispatcher *recordingDispatcher
	svc        PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	store := memory.NewStore()
	seedStorefront(store)
	store.PutOrder(domain.Order{
		ID:             "ord_pending",
		UserID:         "u1",
		OrderNumber:    "ORD-240301-000001",
		Items:          []domain.OrderItem{{ProductID: "P1", Name: "Kurta", Code: "RC", Color: "Red", Price: 500, Quantity: 2}},
		Amount:         1000,
		Status:         domain.OrderStatusPaymentPending,
		PaymentMethod:  domain.PaymentMethodRazorpay,
		GatewayOrderID: "order_G1",
		CreatedAt:      newFakeClock().Now(),
	})

	gateway := &stubGateway{enabled: true, secret: "rzp_secret"}
	gateway.fetchFn = func(_ context.Context, id string) (payments.GatewayOrder, error) {
		if id != "order_G1" {
			return payments.GatewayOrder{}, errors.New("unknown gateway order")
		}
		return payments.GatewayOrder{ID: id, Amount: 100000, Receipt: "ord_pending", Status: "paid"}, nil
	}
	dispatcher := &recordingDispatcher{}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:        store.Orders(),
		Accounts:      store.Accounts(),
		UnitOfWork:    store,
		Gateway:       gateway,
		Stock:         newTestStockService(store),
		Notifications: dispatcher,
		Clock:         newFakeClock().Now,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return &paymentFixture{store: store, gateway: gateway, dispatcher: dispatcher, svc: svc}
}

func validVerifyCommand() VerifyPaymentCommand {
	return VerifyPaymentCommand{
		GatewayOrderID:   "order_G1",
		GatewayPaymentID: "pay_1",
		Signature:        payments.Sign("rzp_secret", "order_G1", "pay_1"),
	}
}

func TestPaymentServiceRejectsTamperedSignature(t *testing.T) {
	fx := newPaymentFixture(t)
	cmd := validVerifyCommand()
	cmd.Signature = payments.Sign("rzp_secret", "order_G1", "pay_2")

	result, err := fx.svc.Verify(context.Background(), cmd)
	if !errors.Is(err, ErrPaymentVerificationFailed) || result.Verified {
		t.Fatalf("expected verification failure, got %+v %v", result, err)
	}
	order, _ := fx.store.Order("ord_pending")
	if order.Payment || order.Status != domain.OrderStatusPaymentPending || order.PaymentID != "" {
		t.Fatalf("tampered signature mutated order: %+v", order)
	}
	if fx.gateway.fetchCalls != 0 {
		t.Fatalf("gateway must not be queried for a bad signature")
	}
	account, _ := fx.store.Account("u1")
	if len(account.Cart) == 0 {
		t.Fatalf("cart must not be cleared on failed verification")
	}
}

func TestPaymentServiceMissingFieldsFailVerification(t *testing.T) {
	fx := newPaymentFixture(t)
	if _, err := fx.svc.Verify(context.Background(), VerifyPaymentCommand{}); !errors.Is(err, ErrPaymentVerificationFailed) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestPaymentServiceVerifyPromotesOrderOnce(t *testing.T) {
	fx := newPaymentFixture(t)
	ctx := context.Background()

	result, err := fx.svc.Verify(ctx, validVerifyCommand())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified || result.Replayed {
		t.Fatalf("unexpected result %+v", result)
	}
	order, _ := fx.store.Order("ord_pending")
	if !order.Payment || order.PaymentID != "pay_1" || order.Status != domain.OrderStatusPlaced {
		t.Fatalf("unexpected order after verify %+v", order)
	}
	account, _ := fx.store.Account("u1")
	if len(account.Cart) != 0 {
		t.Fatalf("expected cart cleared, got %v", account.Cart)
	}
	product, _ := fx.store.Product("P1")
	if product.Variants[0].Stock != 3 {
		t.Fatalf("expected stock 3, got %d", product.Variants[0].Stock)
	}

	replay, err := fx.svc.Verify(ctx, validVerifyCommand())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Verified || !replay.Replayed {
		t.Fatalf("expected replayed result, got %+v", replay)
	}
	product, _ = fx.store.Product("P1")
	if product.Variants[0].Stock != 3 {
		t.Fatalf("replayed verification deducted stock again: %d", product.Variants[0].Stock)
	}
	if got := len(fx.dispatcher.Notifications()); got != 1 {
		t.Fatalf("expected a single confirmation, got %d", got)
	}
}

func TestPaymentServiceReplayAfterPaymentFlagReset(t *testing.T) {
	fx := newPaymentFixture(t)
	ctx := context.Background()
	if _, err := fx.svc.Verify(ctx, validVerifyCommand()); err != nil {
		t.Fatalf("verify: %v", err)
	}

	order, _ := fx.store.Order("ord_pending")
	order.Payment = false
	fx.store.PutOrder(order)

	replay, err := fx.svc.Verify(ctx, validVerifyCommand())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Verified || !replay.Replayed {
		t.Fatalf("expected replayed result, got %+v", replay)
	}
	order, _ = fx.store.Order("ord_pending")
	if !order.Payment || order.PaymentID != "pay_1" {
		t.Fatalf("expected payment flag restored, got %+v", order)
	}
	product, _ := fx.store.Product("P1")
	if product.Variants[0].Stock != 3 {
		t.Fatalf("same payment id deducted stock twice: %d", product.Variants[0].Stock)
	}
	if got := len(fx.dispatcher.Notifications()); got != 1 {
		t.Fatalf("expected a single confirmation, got %d", got)
	}
}

func TestPaymentServiceVerifyRevivesCancelledOrder(t *testing.T) {
	fx := newPaymentFixture(t)
	order, _ := fx.store.Order("ord_pending")
	order.Status = domain.OrderStatusCancelled
	fx.store.PutOrder(order)

	if _, err := fx.svc.Verify(context.Background(), validVerifyCommand()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	order, _ = fx.store.Order("ord_pending")
	if !order.Payment || order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected paid order placed, got %+v", order)
	}
}

func TestPaymentServiceRejectsSecondPayment(t *testing.T) {
	fx := newPaymentFixture(t)
	ctx := context.Background()
	if _, err := fx.svc.Verify(ctx, validVerifyCommand()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	other := VerifyPaymentCommand{
		GatewayOrderID:   "order_G1",
		GatewayPaymentID: "pay_2",
		Signature:        payments.Sign("rzp_secret", "order_G1", "pay_2"),
	}
	if _, err := fx.svc.Verify(ctx, other); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	order, _ := fx.store.Order("ord_pending")
	if order.PaymentID != "pay_1" {
		t.Fatalf("payment id overwritten: %q", order.PaymentID)
	}
}

func TestPaymentServiceGatewayUnavailable(t *testing.T) {
	fx := newPaymentFixture(t)
	fx.gateway.enabled = false
	if _, err := fx.svc.Verify(context.Background(), validVerifyCommand()); !errors.Is(err, ErrPaymentGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
}

func TestPaymentServiceUnknownReceipt(t *testing.T) {
	fx := newPaymentFixture(t)
	fx.gateway.fetchFn = func(_ context.Context, id string) (payments.GatewayOrder, error) {
		return payments.GatewayOrder{ID: id, Receipt: "ord_missing"}, nil
	}
	if _, err := fx.svc.Verify(context.Background(), validVerifyCommand()); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
