package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

// OrderRepository persists orders in the orders collection.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
	now  func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		now:  time.Now,
	}, nil
}

// Insert creates the order document; an existing id is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, encodeOrder(order))
}

// Update replaces the stored order with the provided aggregate.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Set(ctx, id, encodeOrder(order))
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindRecent looks for an order from the same user with the same amount created at or after Since.
// Requires the composite index (userId, amount, createdAt desc).
func (r *OrderRepository) FindRecent(ctx context.Context, query repositories.RecentOrderQuery) (domain.Order, bool, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", query.UserID).
			Where("amount", "==", query.Amount).
			Where("createdAt", ">=", query.Since.UTC()).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	if len(docs) == 0 {
		return domain.Order{}, false, nil
	}
	return decodeOrder(docs[0].ID, docs[0].Data), true, nil
}

// List returns matching orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := decodeOrder(doc.ID, doc.Data)
		if filter.Excludes(order.Status) {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// AppendReviewedItem adds key to reviewedItems without duplicating it.
func (r *OrderRepository) AppendReviewedItem(ctx context.Context, orderID, key string) error {
	return r.base.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "reviewedItems", Value: firestore.ArrayUnion(key)},
		{Path: "updatedAt", Value: r.now().UTC()},
	})
}
