package repositories

import (
	"context"
	"time"

	domain "github.com/storefront/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Accounts() AccountRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Inside fn, reads must happen before writes.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindRecent returns the newest order matching the query, or ok=false.
	FindRecent(ctx context.Context, query RecentOrderQuery) (domain.Order, bool, error)
	// List returns orders newest first.
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	AppendReviewedItem(ctx context.Context, orderID, key string) error
}

// RecentOrderQuery identifies potential duplicate submissions.
type RecentOrderQuery struct {
	UserID string
	Amount float64
	Since  time.Time
}

// OrderListFilter narrows order listings. An empty UserID lists every account.
type OrderListFilter struct {
	UserID          string
	ExcludeStatuses []domain.OrderStatus
}

// Excludes reports whether status is filtered out.
func (f OrderListFilter) Excludes(status domain.OrderStatus) bool {
	for _, excluded := range f.ExcludeStatuses {
		if excluded == status {
			return true
		}
	}
	return false
}

// VariantMutation rewrites a product's variant list. Returning an error aborts the write.
type VariantMutation func(variants []domain.Variant) ([]domain.Variant, error)

// ProductRepository reads products and applies inventory and review mutations.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// MutateVariants applies fn as an atomic read-modify-write of the variant list.
	MutateVariants(ctx context.Context, productID string, fn VariantMutation) error
	AppendReview(ctx context.Context, productID string, review domain.Review) error
}

// CartMutation rewrites an account cart.
type CartMutation func(cart domain.Cart) (domain.Cart, error)

// AccountRepository reads accounts and owns the embedded cart.
type AccountRepository interface {
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
	ClearCart(ctx context.Context, accountID string) error
	MutateCart(ctx context.Context, accountID string, fn CartMutation) (domain.Cart, error)
}

// CounterRepository issues monotonically increasing sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository probes backing services for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
