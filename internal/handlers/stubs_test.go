package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/services"
)

type stubOrderService struct {
	placeCODFn      func(context.Context, services.PlaceOrderCommand) (services.Order, error)
	placeGatewayFn  func(context.Context, services.PlaceOrderCommand) (services.GatewayCheckout, error)
	updateStatusFn  func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	updatePaymentFn func(context.Context, services.UpdatePaymentFlagCommand) (services.Order, error)
	listAllFn       func(context.Context) ([]services.Order, error)
	listForUserFn   func(context.Context, string) ([]services.Order, error)
	invoiceFn       func(context.Context, string) (services.InvoiceDocument, error)
}

func (s *stubOrderService) PlaceCOD(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeCODFn != nil {
		return s.placeCODFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) PlaceGateway(ctx context.Context, cmd services.PlaceOrderCommand) (services.GatewayCheckout, error) {
	if s.placeGatewayFn != nil {
		return s.placeGatewayFn(ctx, cmd)
	}
	return services.GatewayCheckout{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdatePayment(ctx context.Context, cmd services.UpdatePaymentFlagCommand) (services.Order, error) {
	if s.updatePaymentFn != nil {
		return s.updatePaymentFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListAll(ctx context.Context) ([]services.Order, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx)
	}
	return nil, nil
}

func (s *stubOrderService) ListForUser(ctx context.Context, userID string) ([]services.Order, error) {
	if s.listForUserFn != nil {
		return s.listForUserFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubOrderService) RenderInvoice(ctx context.Context, orderID string) (services.InvoiceDocument, error) {
	if s.invoiceFn != nil {
		return s.invoiceFn(ctx, orderID)
	}
	return services.InvoiceDocument{}, errors.New("not implemented")
}

type stubPaymentService struct {
	verifyFn func(context.Context, services.VerifyPaymentCommand) (services.VerifyPaymentResult, error)
}

func (s *stubPaymentService) Verify(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.VerifyPaymentResult{}, errors.New("not implemented")
}

type stubCartService struct {
	getFn    func(context.Context, string) (services.Cart, error)
	addFn    func(context.Context, services.AddCartItemCommand) (services.Cart, error)
	updateFn func(context.Context, services.UpdateCartItemCommand) (services.Cart, error)
	mergeFn  func(context.Context, services.MergeCartCommand) (services.Cart, error)
}

func (s *stubCartService) Get(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) Add(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCartService) Update(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCartService) Merge(ctx context.Context, cmd services.MergeCartCommand) (services.Cart, error) {
	if s.mergeFn != nil {
		return s.mergeFn(ctx, cmd)
	}
	return nil, errors.New("not implemented")
}

type stubReviewService struct {
	submitFn func(context.Context, services.SubmitReviewCommand) (services.Review, error)
	listFn   func(context.Context, services.ReviewFilter) (services.ReviewSummary, error)
}

func (s *stubReviewService) Submit(ctx context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, cmd)
	}
	return services.Review{}, errors.New("not implemented")
}

func (s *stubReviewService) ListForProduct(ctx context.Context, filter services.ReviewFilter) (services.ReviewSummary, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.ReviewSummary{}, nil
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

// stubRepoError satisfies repositories.RepositoryError.
type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repository failure" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func withUser(req *http.Request, userID, role string) *http.Request {
	identity := &auth.Identity{
		UserID:  userID,
		Account: domain.Account{ID: userID, Email: userID + "@example.com", Role: role, Name: "Asha"},
	}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			if err := json.NewEncoder(&buf).Encode(v); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

var (
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.CartService    = (*stubCartService)(nil)
	_ services.ReviewService  = (*stubReviewService)(nil)
	_ services.SystemService  = (*stubSystemService)(nil)
)
