package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/textutil"
	"github.com/storefront/api/internal/repositories"
)

const (
	defaultDuplicateWindow = 30 * time.Second
	orderCounterPrefix     = "orders:"
	orderIDPrefix          = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderDuplicate indicates an order with the same amount was placed moments ago.
	ErrOrderDuplicate = errors.New("order: duplicate order detected")
	// ErrOrderConflict indicates concurrent modification or an id collision.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentGatewayUnavailable indicates online payments are not configured.
	ErrPaymentGatewayUnavailable = errors.New("payment: gateway not configured")

	errInvoiceRendererUnavailable = errors.New("order: invoice renderer not configured")
)

// OrderServiceDeps enumerates collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Accounts        repositories.AccountRepository
	Counters        repositories.CounterRepository
	UnitOfWork      repositories.UnitOfWork
	Stock           StockService
	Notifications   NotificationDispatcher
	Gateway         payments.Gateway
	Invoices        InvoiceRenderer
	DuplicateWindow time.Duration
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders          repositories.OrderRepository
	accounts        repositories.AccountRepository
	counters        repositories.CounterRepository
	unitOfWork      repositories.UnitOfWork
	stock           StockService
	notifications   NotificationDispatcher
	gateway         payments.Gateway
	invoices        InvoiceRenderer
	duplicateWindow time.Duration
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires the order lifecycle service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("order service: account repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	gateway := deps.Gateway
	if gateway == nil {
		gateway = payments.Disabled{}
	}
	window := deps.DuplicateWindow
	if window <= 0 {
		window = defaultDuplicateWindow
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:          deps.Orders,
		accounts:        deps.Accounts,
		counters:        deps.Counters,
		unitOfWork:      unit,
		stock:           deps.Stock,
		notifications:   deps.Notifications,
		gateway:         gateway,
		invoices:        deps.Invoices,
		duplicateWindow: window,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// PlaceCOD records a cash-on-delivery order, clears the cart in the same transaction and then
// runs the best-effort stock deduction and confirmation email.
func (s *orderService) PlaceCOD(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	order, err := s.buildOrder(cmd, domain.PaymentMethodCOD, domain.OrderStatusPlaced)
	if err != nil {
		return Order{}, err
	}
	if err := s.persistNewOrder(ctx, &order, true); err != nil {
		return Order{}, err
	}

	report := s.stock.Deduct(ctx, order.Items)
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":       order.ID,
		"orderNumber":   order.OrderNumber,
		"paymentMethod": string(order.PaymentMethod),
		"amount":        order.Amount,
		"stockFailures": report.Failed(),
	})
	s.notify(ctx, Notification{Kind: NotificationOrderConfirmation, Order: order, Email: cmd.Email})
	return order, nil
}

// PlaceGateway records a pending order and opens the matching gateway order. Cart, stock and
// email side effects wait for a verified payment.
func (s *orderService) PlaceGateway(ctx context.Context, cmd PlaceOrderCommand) (GatewayCheckout, error) {
	if !s.gateway.Enabled() {
		return GatewayCheckout{}, ErrPaymentGatewayUnavailable
	}
	order, err := s.buildOrder(cmd, domain.PaymentMethodRazorpay, domain.OrderStatusPaymentPending)
	if err != nil {
		return GatewayCheckout{}, err
	}
	if err := s.persistNewOrder(ctx, &order, false); err != nil {
		return GatewayCheckout{}, err
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		AmountMinor: domain.MinorUnits(order.Amount),
		Currency:    domain.CurrencyINR,
		Receipt:     order.ID,
		Notes:       map[string]string{"orderNumber": order.OrderNumber},
	})
	if err != nil {
		s.abandonPendingOrder(ctx, order, err)
		return GatewayCheckout{}, fmt.Errorf("order: create gateway order: %w", err)
	}

	order.GatewayOrderID = intent.ID
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		// Verification resolves the order through the gateway receipt, so this is not fatal.
		s.logger(ctx, "order.gateway_id.persist_failed", map[string]any{
			"orderId":        order.ID,
			"gatewayOrderId": intent.ID,
			"error":          err.Error(),
		})
	}
	s.logger(ctx, "order.gateway_pending", map[string]any{
		"orderId":        order.ID,
		"gatewayOrderId": intent.ID,
		"amountMinor":    intent.Amount,
	})
	return GatewayCheckout{Order: order, Intent: intent}, nil
}

// UpdateStatus applies an administrator status change. Entering Delivered queues the invoice.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	status, ok := domain.ParseAdminStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: status %q is not allowed", ErrOrderInvalidInput, strings.TrimSpace(cmd.Status))
	}

	var (
		updated  Order
		previous OrderStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		order.Status = status
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": updated.ID,
		"from":    string(previous),
		"to":      string(status),
	})
	if status == domain.OrderStatusDelivered && previous != domain.OrderStatusDelivered {
		s.notify(ctx, Notification{Kind: NotificationInvoiceDelivery, Order: updated})
	}
	return updated, nil
}

// UpdatePayment sets the payment-confirmed flag without other side effects.
func (s *orderService) UpdatePayment(ctx context.Context, cmd UpdatePaymentFlagCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var updated Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		order.Payment = cmd.Payment
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.payment_flag.updated", map[string]any{
		"orderId": updated.ID,
		"payment": updated.Payment,
	})
	return updated, nil
}

// ListAll returns every confirmed order, newest first, with the customer's name and
// email attached. Orders whose account no longer exists carry no customer.
func (s *orderService) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		ExcludeStatuses: []domain.OrderStatus{domain.OrderStatusPaymentPending},
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	customers := make(map[string]*domain.Customer)
	for i := range orders {
		userID := orders[i].UserID
		customer, seen := customers[userID]
		if !seen {
			account, err := s.accounts.FindByID(ctx, userID)
			switch {
			case err == nil:
				customer = &domain.Customer{Name: account.Name, Email: account.Email}
			case isRepositoryNotFound(err):
			default:
				return nil, s.mapRepositoryError(err)
			}
			customers[userID] = customer
		}
		orders[i].Customer = customer
	}
	return orders, nil
}

// ListForUser returns the caller's confirmed orders, newest first.
func (s *orderService) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:          userID,
		ExcludeStatuses: []domain.OrderStatus{domain.OrderStatusPaymentPending},
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// RenderInvoice builds the invoice PDF for download.
func (s *orderService) RenderInvoice(ctx context.Context, orderID string) (InvoiceDocument, error) {
	if s.invoices == nil {
		return InvoiceDocument{}, errInvoiceRendererUnavailable
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return InvoiceDocument{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return InvoiceDocument{}, s.mapRepositoryError(err)
	}

	email := ""
	if account, err := s.accounts.FindByID(ctx, order.UserID); err == nil {
		email = account.Email
	} else {
		s.logger(ctx, "order.invoice.account_lookup_failed", map[string]any{
			"orderId": order.ID,
			"userId":  order.UserID,
			"error":   err.Error(),
		})
	}

	content, err := s.invoices.Render(order, email)
	if err != nil {
		return InvoiceDocument{}, fmt.Errorf("order: render invoice: %w", err)
	}
	return InvoiceDocument{
		Filename: "invoice-" + order.DisplayNumber() + ".pdf",
		Content:  content,
	}, nil
}

func (s *orderService) buildOrder(cmd PlaceOrderCommand, method PaymentMethod, status OrderStatus) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if math.IsNaN(cmd.Amount) || math.IsInf(cmd.Amount, 0) || cmd.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: amount must be positive", ErrOrderInvalidInput)
	}

	items := make([]OrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		normalized, err := normalizeOrderItem(item)
		if err != nil {
			return Order{}, fmt.Errorf("%w: items[%d]: %v", ErrOrderInvalidInput, i, err)
		}
		items = append(items, normalized)
	}
	address, err := normalizeAddress(cmd.Address)
	if err != nil {
		return Order{}, fmt.Errorf("%w: address: %v", ErrOrderInvalidInput, err)
	}

	now := s.now()
	return Order{
		ID:            orderIDPrefix + strings.ToLower(s.newID()),
		UserID:        userID,
		Items:         items,
		Amount:        cmd.Amount,
		Address:       address,
		Status:        status,
		PaymentMethod: method,
		ReviewedItems: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// persistNewOrder runs the duplicate guard and the insert in one transaction. The order
// number is drawn first; a rejected duplicate leaves a gap in the daily sequence.
func (s *orderService) persistNewOrder(ctx context.Context, order *Order, clearCart bool) error {
	number, err := s.nextOrderNumber(ctx, order.CreatedAt)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	order.OrderNumber = number

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		recent, found, err := s.orders.FindRecent(txCtx, repositories.RecentOrderQuery{
			UserID: order.UserID,
			Amount: order.Amount,
			Since:  order.CreatedAt.Add(-s.duplicateWindow),
		})
		if err != nil {
			return err
		}
		if found && recent.Status != domain.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s was placed at %s", ErrOrderDuplicate, recent.DisplayNumber(), recent.CreatedAt.Format(time.RFC3339))
		}
		if err := s.orders.Insert(txCtx, *order); err != nil {
			return err
		}
		if clearCart {
			return s.accounts.ClearCart(txCtx, order.UserID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderDuplicate) {
			s.logger(ctx, "order.duplicate_rejected", map[string]any{
				"userId": order.UserID,
				"amount": order.Amount,
			})
			return err
		}
		return s.mapRepositoryError(err)
	}
	return nil
}

// abandonPendingOrder cancels a pending order whose gateway order could not be opened so the
// duplicate guard does not block the client's retry.
func (s *orderService) abandonPendingOrder(ctx context.Context, order Order, cause error) {
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = s.now()
	fields := map[string]any{
		"orderId": order.ID,
		"error":   cause.Error(),
	}
	if err := s.orders.Update(ctx, order); err != nil {
		fields["cancelError"] = err.Error()
	}
	s.logger(ctx, "order.gateway_create_failed", fields)
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterPrefix+now.Format("20060102"), 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%06d", now.Format("060102"), seq), nil
}

func (s *orderService) notify(ctx context.Context, n Notification) {
	if s.notifications == nil {
		return
	}
	s.notifications.Enqueue(ctx, n)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func normalizeOrderItem(item OrderItem) (OrderItem, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return OrderItem{}, errors.New("productId is required")
	}
	item.Name = textutil.PlainText(item.Name)
	if item.Name == "" {
		return OrderItem{}, errors.New("name is required")
	}
	if item.Quantity < 1 {
		return OrderItem{}, errors.New("quantity must be at least 1")
	}
	if item.Price < 0 || math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
		return OrderItem{}, errors.New("price must not be negative")
	}
	item.Code = strings.TrimSpace(item.Code)
	item.Color = strings.TrimSpace(item.Color)
	item.Fabric = strings.TrimSpace(item.Fabric)
	item.Image = strings.TrimSpace(item.Image)
	sizes := make([]string, 0, len(item.Sizes))
	for _, size := range item.Sizes {
		if trimmed := strings.TrimSpace(size); trimmed != "" {
			sizes = append(sizes, trimmed)
		}
	}
	item.Sizes = sizes
	return item, nil
}

func normalizeAddress(addr Address) (Address, error) {
	out := Address{
		FullName:    textutil.PlainText(addr.FullName),
		Phone:       strings.TrimSpace(addr.Phone),
		Pincode:     strings.TrimSpace(addr.Pincode),
		State:       textutil.PlainText(addr.State),
		City:        textutil.PlainText(addr.City),
		AddressLine: textutil.PlainText(addr.AddressLine),
		Landmark:    textutil.PlainText(addr.Landmark),
	}
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"fullName", out.FullName},
		{"phone", out.Phone},
		{"pincode", out.Pincode},
		{"state", out.State},
		{"city", out.City},
		{"addressLine", out.AddressLine},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return Address{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return out, nil
}
