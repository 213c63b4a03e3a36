package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPaymentPending marks gateway orders awaiting signature verification.
	// Such orders are hidden from every listing until promoted.
	OrderStatusPaymentPending OrderStatus = "Payment Pending"
	// OrderStatusPlaced indicates the order is confirmed (COD or verified payment).
	OrderStatusPlaced OrderStatus = "Order Placed"
	// OrderStatusDispatched indicates the parcel left the warehouse.
	OrderStatusDispatched OrderStatus = "Dispatched"
	// OrderStatusOutForDelivery indicates the courier is on the last mile.
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	// OrderStatusDelivered is the terminal success state; it triggers the invoice email.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled is the terminal failure state.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// AdminSettableStatuses lists the statuses an administrator may assign.
var AdminSettableStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusDispatched,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseAdminStatus validates a raw status against AdminSettableStatuses.
// Matching is exact after trimming; "Shipped" or "delivered" are rejected.
func ParseAdminStatus(raw string) (OrderStatus, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, status := range AdminSettableStatuses {
		if string(status) == trimmed {
			return status, true
		}
	}
	return "", false
}

// Listable reports whether orders in this status appear in order listings.
func (s OrderStatus) Listable() bool {
	return s != OrderStatusPaymentPending
}

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodRazorpay PaymentMethod = "Razorpay"
	// Legacy values still present on historical documents.
	PaymentMethodStripe PaymentMethod = "Stripe"
	PaymentMethodUPI    PaymentMethod = "UPI"
	PaymentMethodCard   PaymentMethod = "Card"
)

// Order is the persisted order aggregate.
type Order struct {
	ID             string
	UserID         string
	OrderNumber    string
	Items          []OrderItem
	Amount         float64
	Address        Address
	Status         OrderStatus
	PaymentMethod  PaymentMethod
	Payment        bool
	PaymentID      string
	GatewayOrderID string
	ReviewedItems  []string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Customer is joined from the account for the admin listing; it is never persisted.
	Customer *Customer
}

// Customer is the account summary shown next to an order.
type Customer struct {
	Name  string
	Email string
}

// HasReviewed reports whether the review key was already appended to the order.
func (o Order) HasReviewed(key string) bool {
	for _, existing := range o.ReviewedItems {
		if existing == key {
			return true
		}
	}
	return false
}

// DisplayNumber returns the human readable number, falling back to the id for legacy orders.
func (o Order) DisplayNumber() string {
	if strings.TrimSpace(o.OrderNumber) != "" {
		return o.OrderNumber
	}
	return o.ID
}

// OrderItem is a snapshot of the purchased variant at order time.
type OrderItem struct {
	ProductID string
	Name      string
	Code      string
	Image     string
	Color     string
	Fabric    string
	Sizes     []string
	Price     float64
	Quantity  int
}

// Selector builds the variant selector used to locate inventory for this line.
func (i OrderItem) Selector() VariantSelector {
	return VariantSelector{Code: i.Code, Color: i.Color, Fabric: i.Fabric}
}

// Address is the shipping address captured with the order.
type Address struct {
	FullName    string
	Phone       string
	Pincode     string
	State       string
	City        string
	AddressLine string
	Landmark    string
}

// Product is the catalog entry holding the denormalized variant list.
type Product struct {
	ID       string
	Name     string
	Variants []Variant
	Reviews  []Review
}

// Variant is a sellable configuration of a product.
// LegacyType carries the pre-rename field name; NormalizeVariant folds it into Fabric.
type Variant struct {
	Color      string
	Fabric     string
	LegacyType string
	Code       string
	Stock      int
	Price      float64
	Images     []string
	Sizes      []string
}

// Review is a product review bound to a delivered order.
type Review struct {
	ID           string
	UserID       string
	UserName     string
	Rating       int
	Comment      string
	VariantCode  string
	VariantColor string
	OrderID      string
	CreatedAt    time.Time
}

// ReviewKey builds the per-order dedupe key for a reviewed line item.
func ReviewKey(productID, variantCode, variantColor string) string {
	suffix := variantCode
	if suffix == "" {
		suffix = variantColor
	}
	return productID + "_" + suffix
}

// Role names stored on accounts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the customer record including the embedded cart.
type Account struct {
	ID    string
	Name  string
	Email string
	Role  string
	Cart  Cart
}

// IsAdmin reports whether the account carries the admin role.
func (a Account) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), RoleAdmin)
}

// CartLine is a single cart entry keyed by item id.
type CartLine struct {
	Quantity int
	Color    string
	Type     string
	Code     string
}

// Cart maps item id to cart line.
type Cart map[string]CartLine

// Clone returns a deep copy; nil carts clone to an empty map.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, line := range c {
		out[id] = line
	}
	return out
}
