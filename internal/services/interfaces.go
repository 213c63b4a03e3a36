package services

import (
	"context"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	PaymentMethod = domain.PaymentMethod
	Address       = domain.Address
	Product       = domain.Product
	Variant       = domain.Variant
	Review        = domain.Review
	Account       = domain.Account
	Cart          = domain.Cart
	CartLine      = domain.CartLine
	HealthReport  = domain.HealthReport
)

// OrderService coordinates order placement, admin transitions and listings.
type OrderService interface {
	PlaceCOD(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	PlaceGateway(ctx context.Context, cmd PlaceOrderCommand) (GatewayCheckout, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdatePayment(ctx context.Context, cmd UpdatePaymentFlagCommand) (Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	ListForUser(ctx context.Context, userID string) ([]Order, error)
	RenderInvoice(ctx context.Context, orderID string) (InvoiceDocument, error)
}

// PaymentService confirms gateway payments reported by the checkout widget.
type PaymentService interface {
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
}

// StockService applies best-effort stock deductions for completed orders.
type StockService interface {
	Deduct(ctx context.Context, items []OrderItem) DeductionReport
}

// CartService manages the cart embedded in an account.
type CartService interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Add(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	Update(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	Merge(ctx context.Context, cmd MergeCartCommand) (Cart, error)
}

// ReviewService accepts reviews for delivered order lines and aggregates them per product.
type ReviewService interface {
	Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	ListForProduct(ctx context.Context, filter ReviewFilter) (ReviewSummary, error)
}

// NotificationDispatcher queues post-order side effects off the request path.
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, n Notification) bool
	Close(ctx context.Context) error
}

// SystemService exposes readiness information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Mailer delivers a composed message.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// InvoiceRenderer produces the invoice PDF for an order.
type InvoiceRenderer interface {
	Render(order Order, customerEmail string) ([]byte, error)
}

// InvoiceArchive keeps a copy of every delivered invoice.
type InvoiceArchive interface {
	StoreInvoice(ctx context.Context, order Order, pdf []byte) (string, error)
}

// OrderEventPublisher fans order lifecycle events out to other systems.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// Command and DTO definitions ------------------------------------------------

type PlaceOrderCommand struct {
	UserID  string
	Email   string
	Items   []OrderItem
	Amount  float64
	Address Address
}

// GatewayCheckout pairs the pending local order with the gateway order the client pays against.
type GatewayCheckout struct {
	Order  Order
	Intent payments.GatewayOrder
}

type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
}

type UpdatePaymentFlagCommand struct {
	OrderID string
	Payment bool
}

type InvoiceDocument struct {
	Filename string
	Content  []byte
}

type VerifyPaymentCommand struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type VerifyPaymentResult struct {
	Verified bool
	// Replayed is set when the payment had already been applied to the order.
	Replayed bool
	Order    Order
}

// DeductionOutcome classifies a single stock deduction attempt.
type DeductionOutcome string

const (
	DeductionApplied DeductionOutcome = "applied"
	DeductionSkipped DeductionOutcome = "skipped"
	DeductionFailed  DeductionOutcome = "failed"
)

type DeductionResult struct {
	ProductID string
	Quantity  int
	Outcome   DeductionOutcome
	Strategy  domain.MatchStrategy
	Previous  int
	Remaining int
	Err       error
}

type DeductionReport struct {
	Results []DeductionResult
}

// Failed counts lines that could not be applied.
func (r DeductionReport) Failed() int {
	count := 0
	for _, res := range r.Results {
		if res.Outcome == DeductionFailed {
			count++
		}
	}
	return count
}

type AddCartItemCommand struct {
	UserID string
	ItemID string
	Color  string
	Type   string
	Code   string
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

type MergeCartCommand struct {
	UserID string
	Items  Cart
}

type SubmitReviewCommand struct {
	UserID       string
	OrderID      string
	ProductID    string
	VariantCode  string
	VariantColor string
	Rating       int
	Comment      string
}

type ReviewFilter struct {
	ProductID    string
	VariantCode  string
	VariantColor string
}

type ReviewSummary struct {
	Reviews   []Review
	AvgRating float64
	Total     int
}

// NotificationKind selects the template and sinks used for a notification.
type NotificationKind string

const (
	NotificationOrderConfirmation NotificationKind = "order_confirmation"
	NotificationInvoiceDelivery   NotificationKind = "invoice_delivery"
)

type Notification struct {
	Kind  NotificationKind
	Order Order
	// Email overrides the account lookup when the caller already knows the address.
	Email string
}

type MailAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type MailMessage struct {
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []MailAttachment
}

// OrderEvent is the payload delivered to subscribers via Pub/Sub.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	UserID        string    `json:"userId"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	InvoicePath   string    `json:"invoicePath,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type SystemHealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]domain.DependencyHealth
	GeneratedAt time.Time
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noopLogger(context.Context, string, map[string]any) {}
