package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories"
)

// ErrPaymentVerificationFailed indicates the checkout signature did not match.
var ErrPaymentVerificationFailed = errors.New("payment: verification failed")

// PaymentServiceDeps enumerates collaborators required by the payment service.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Accounts      repositories.AccountRepository
	UnitOfWork    repositories.UnitOfWork
	Gateway       payments.Gateway
	Stock         StockService
	Notifications NotificationDispatcher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders        repositories.OrderRepository
	accounts      repositories.AccountRepository
	unitOfWork    repositories.UnitOfWork
	gateway       payments.Gateway
	stock         StockService
	notifications NotificationDispatcher
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires gateway payment verification.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("payment service: account repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("payment service: stock service is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	gateway := deps.Gateway
	if gateway == nil {
		gateway = payments.Disabled{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentService{
		orders:        deps.Orders,
		accounts:      deps.Accounts,
		unitOfWork:    unit,
		gateway:       gateway,
		stock:         deps.Stock,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Verify checks the checkout signature and, when it matches, claims the order for the payment.
// The claim is transactional and keyed by the gateway payment id, so a replayed callback
// reports success without clearing the cart or deducting stock again.
func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	if !s.gateway.Enabled() {
		return VerifyPaymentResult{}, ErrPaymentGatewayUnavailable
	}
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	if !s.gateway.VerifySignature(gatewayOrderID, paymentID, cmd.Signature) {
		s.logger(ctx, "payment.verification.failed", map[string]any{
			"gatewayOrderId": gatewayOrderID,
			"paymentId":      paymentID,
		})
		return VerifyPaymentResult{}, ErrPaymentVerificationFailed
	}

	gatewayOrder, err := s.gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return VerifyPaymentResult{}, fmt.Errorf("payment: fetch gateway order: %w", err)
	}
	orderID := strings.TrimSpace(gatewayOrder.Receipt)
	if orderID == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: gateway order %s carries no receipt", ErrOrderNotFound, gatewayOrderID)
	}

	var (
		order    Order
		replayed bool
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.GatewayOrderID != "" && current.GatewayOrderID != gatewayOrderID {
			return fmt.Errorf("%w: order %s belongs to gateway order %s", ErrOrderConflict, current.ID, current.GatewayOrderID)
		}
		if current.PaymentID == paymentID {
			// The payment id was already claimed; only the flag may have been reset since.
			replayed = true
			if current.Payment {
				order = current
				return nil
			}
			current.Payment = true
			current.UpdatedAt = s.clock()
			if err := s.orders.Update(txCtx, current); err != nil {
				return err
			}
			order = current
			return nil
		}
		if current.Payment && current.PaymentID != "" {
			return fmt.Errorf("%w: order %s already settled by another payment", ErrOrderConflict, current.ID)
		}

		current.Payment = true
		current.PaymentID = paymentID
		current.GatewayOrderID = gatewayOrderID
		switch current.Status {
		case domain.OrderStatusPaymentPending, domain.OrderStatusCancelled:
			current.Status = domain.OrderStatusPlaced
		}
		current.UpdatedAt = s.clock()
		if err := s.orders.Update(txCtx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderConflict) {
			return VerifyPaymentResult{}, err
		}
		return VerifyPaymentResult{}, mapOrderRepositoryError(err)
	}

	if replayed {
		s.logger(ctx, "payment.verification.replayed", map[string]any{
			"orderId":   order.ID,
			"paymentId": paymentID,
		})
		return VerifyPaymentResult{Verified: true, Replayed: true, Order: order}, nil
	}

	if expected := domain.MinorUnits(order.Amount); gatewayOrder.Amount != 0 && gatewayOrder.Amount != expected {
		s.logger(ctx, "payment.amount_mismatch", map[string]any{
			"orderId":       order.ID,
			"expectedMinor": expected,
			"gatewayMinor":  gatewayOrder.Amount,
		})
	}

	if err := s.accounts.ClearCart(ctx, order.UserID); err != nil {
		s.logger(ctx, "payment.cart_clear_failed", map[string]any{
			"orderId": order.ID,
			"userId":  order.UserID,
			"error":   err.Error(),
		})
	}
	report := s.stock.Deduct(ctx, order.Items)
	s.logger(ctx, "payment.verified", map[string]any{
		"orderId":       order.ID,
		"paymentId":     paymentID,
		"stockFailures": report.Failed(),
	})
	if s.notifications != nil {
		s.notifications.Enqueue(ctx, Notification{Kind: NotificationOrderConfirmation, Order: order})
	}
	return VerifyPaymentResult{Verified: true, Order: order}, nil
}
