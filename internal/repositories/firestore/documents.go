package firestore

import (
	"time"

	domain "github.com/storefront/api/internal/domain"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
	usersCollection    = "users"
	countersCollection = "counters"
)

type orderDocument struct {
	UserID         string              `firestore:"userId"`
	OrderNumber    string              `firestore:"orderNumber,omitempty"`
	Items          []orderItemDocument `firestore:"items"`
	Amount         float64             `firestore:"amount"`
	Address        addressDocument     `firestore:"address"`
	Status         string              `firestore:"status"`
	PaymentMethod  string              `firestore:"paymentMethod"`
	Payment        bool                `firestore:"payment"`
	PaymentID      string              `firestore:"paymentId,omitempty"`
	GatewayOrderID string              `firestore:"razorpayOrderId,omitempty"`
	ReviewedItems  []string            `firestore:"reviewedItems"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string   `firestore:"productId"`
	Name      string   `firestore:"name"`
	Code      string   `firestore:"code,omitempty"`
	Image     string   `firestore:"image,omitempty"`
	Color     string   `firestore:"color,omitempty"`
	Fabric    string   `firestore:"fabric,omitempty"`
	Sizes     []string `firestore:"sizes,omitempty"`
	Price     float64  `firestore:"price"`
	Quantity  int      `firestore:"quantity"`
}

type addressDocument struct {
	FullName    string `firestore:"fullName"`
	Phone       string `firestore:"phone"`
	Pincode     string `firestore:"pincode"`
	State       string `firestore:"state"`
	City        string `firestore:"city"`
	AddressLine string `firestore:"addressLine"`
	Landmark    string `firestore:"landmark,omitempty"`
}

type reviewDocument struct {
	ID           string    `firestore:"id"`
	UserID       string    `firestore:"userId"`
	UserName     string    `firestore:"userName"`
	Rating       int       `firestore:"rating"`
	Comment      string    `firestore:"comment"`
	VariantCode  string    `firestore:"variantCode,omitempty"`
	VariantColor string    `firestore:"variantColor,omitempty"`
	OrderID      string    `firestore:"orderId"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// productDocument keeps variants untyped so fields this service does not model survive rewrites.
type productDocument struct {
	Name     string           `firestore:"name"`
	Variants []map[string]any `firestore:"variants"`
	Reviews  []reviewDocument `firestore:"reviews"`
}

type cartLineDocument struct {
	Quantity int    `firestore:"quantity"`
	Color    string `firestore:"color,omitempty"`
	Type     string `firestore:"type,omitempty"`
	Code     string `firestore:"code,omitempty"`
}

type userDocument struct {
	Name     string                      `firestore:"name"`
	Email    string                      `firestore:"email"`
	Role     string                      `firestore:"role"`
	CartData map[string]cartLineDocument `firestore:"cartData"`
}

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Code:      item.Code,
			Image:     item.Image,
			Color:     item.Color,
			Fabric:    item.Fabric,
			Sizes:     item.Sizes,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	reviewed := order.ReviewedItems
	if reviewed == nil {
		reviewed = []string{}
	}
	return orderDocument{
		UserID:      order.UserID,
		OrderNumber: order.OrderNumber,
		Items:       items,
		Amount:      order.Amount,
		Address: addressDocument{
			FullName:    order.Address.FullName,
			Phone:       order.Address.Phone,
			Pincode:     order.Address.Pincode,
			State:       order.Address.State,
			City:        order.Address.City,
			AddressLine: order.Address.AddressLine,
			Landmark:    order.Address.Landmark,
		},
		Status:         string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		Payment:        order.Payment,
		PaymentID:      order.PaymentID,
		GatewayOrderID: order.GatewayOrderID,
		ReviewedItems:  reviewed,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Code:      item.Code,
			Image:     item.Image,
			Color:     item.Color,
			Fabric:    item.Fabric,
			Sizes:     item.Sizes,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return domain.Order{
		ID:          id,
		UserID:      doc.UserID,
		OrderNumber: doc.OrderNumber,
		Items:       items,
		Amount:      doc.Amount,
		Address: domain.Address{
			FullName:    doc.Address.FullName,
			Phone:       doc.Address.Phone,
			Pincode:     doc.Address.Pincode,
			State:       doc.Address.State,
			City:        doc.Address.City,
			AddressLine: doc.Address.AddressLine,
			Landmark:    doc.Address.Landmark,
		},
		Status:         domain.OrderStatus(doc.Status),
		PaymentMethod:  domain.PaymentMethod(doc.PaymentMethod),
		Payment:        doc.Payment,
		PaymentID:      doc.PaymentID,
		GatewayOrderID: doc.GatewayOrderID,
		ReviewedItems:  doc.ReviewedItems,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func encodeReview(review domain.Review) reviewDocument {
	return reviewDocument{
		ID:           review.ID,
		UserID:       review.UserID,
		UserName:     review.UserName,
		Rating:       review.Rating,
		Comment:      review.Comment,
		VariantCode:  review.VariantCode,
		VariantColor: review.VariantColor,
		OrderID:      review.OrderID,
		CreatedAt:    review.CreatedAt.UTC(),
	}
}

func decodeProduct(id string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:       id,
		Name:     doc.Name,
		Variants: make([]domain.Variant, 0, len(doc.Variants)),
		Reviews:  make([]domain.Review, 0, len(doc.Reviews)),
	}
	for _, raw := range doc.Variants {
		product.Variants = append(product.Variants, variantFromMap(raw))
	}
	for _, r := range doc.Reviews {
		product.Reviews = append(product.Reviews, domain.Review{
			ID:           r.ID,
			UserID:       r.UserID,
			UserName:     r.UserName,
			Rating:       r.Rating,
			Comment:      r.Comment,
			VariantCode:  r.VariantCode,
			VariantColor: r.VariantColor,
			OrderID:      r.OrderID,
			CreatedAt:    r.CreatedAt,
		})
	}
	return product
}

func variantFromMap(raw map[string]any) domain.Variant {
	return domain.Variant{
		Color:      stringField(raw, "color"),
		Fabric:     stringField(raw, "fabric"),
		LegacyType: stringField(raw, "type"),
		Code:       stringField(raw, "code"),
		Stock:      int(numberField(raw, "stock")),
		Price:      numberField(raw, "price"),
		Images:     stringSliceField(raw, "images"),
		Sizes:      stringSliceField(raw, "sizes"),
	}
}

// mergeVariant writes the modelled fields of next over raw, touching only fields that changed
// relative to prev. Stock is always written.
func mergeVariant(raw map[string]any, prev, next domain.Variant) map[string]any {
	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out["stock"] = int64(next.Stock)
	setIfChanged := func(key, before, after string) {
		if before != after {
			out[key] = after
		}
	}
	setIfChanged("color", prev.Color, next.Color)
	setIfChanged("fabric", prev.Fabric, next.Fabric)
	setIfChanged("type", prev.LegacyType, next.LegacyType)
	setIfChanged("code", prev.Code, next.Code)
	if prev.Price != next.Price {
		out["price"] = next.Price
	}
	return out
}

func variantToMap(v domain.Variant) map[string]any {
	out := map[string]any{
		"color": v.Color,
		"code":  v.Code,
		"stock": int64(v.Stock),
		"price": v.Price,
	}
	if v.Fabric != "" {
		out["fabric"] = v.Fabric
	}
	if v.LegacyType != "" {
		out["type"] = v.LegacyType
	}
	if len(v.Images) > 0 {
		out["images"] = v.Images
	}
	if len(v.Sizes) > 0 {
		out["sizes"] = v.Sizes
	}
	return out
}

func decodeAccount(id string, doc userDocument) domain.Account {
	cart := make(domain.Cart, len(doc.CartData))
	for itemID, line := range doc.CartData {
		cart[itemID] = domain.CartLine{
			Quantity: line.Quantity,
			Color:    line.Color,
			Type:     line.Type,
			Code:     line.Code,
		}
	}
	return domain.Account{
		ID:    id,
		Name:  doc.Name,
		Email: doc.Email,
		Role:  doc.Role,
		Cart:  cart,
	}
}

func encodeCart(cart domain.Cart) map[string]cartLineDocument {
	out := make(map[string]cartLineDocument, len(cart))
	for itemID, line := range cart {
		out[itemID] = cartLineDocument{
			Quantity: line.Quantity,
			Color:    line.Color,
			Type:     line.Type,
			Code:     line.Code,
		}
	}
	return out
}

func stringField(raw map[string]any, key string) string {
	if value, ok := raw[key].(string); ok {
		return value
	}
	return ""
}

func numberField(raw map[string]any, key string) float64 {
	switch value := raw[key].(type) {
	case int64:
		return float64(value)
	case int:
		return float64(value)
	case float64:
		return value
	}
	return 0
}

func stringSliceField(raw map[string]any, key string) []string {
	switch values := raw[key].(type) {
	case []string:
		return append([]string(nil), values...)
	case []any:
		out := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
