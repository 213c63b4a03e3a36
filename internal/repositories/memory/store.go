// Package memory provides in-process repositories for tests and local debugging.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// Error implements repositories.RepositoryError.
type Error struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return e.msg }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func notFound(kind, id string) error {
	return &Error{msg: fmt.Sprintf("memory: %s %q not found", kind, id), notFound: true}
}

// Store keeps every collection in maps guarded by one mutex. RunInTx serialises callbacks and
// restores a snapshot when fn fails, which is enough to mimic Firestore's all-or-nothing commit.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	orders   map[string]domain.Order
	products map[string]domain.Product
	accounts map[string]domain.Account
	counters map[string]int64

	// FailNext, when set, is returned (and cleared) by the next repository call.
	FailNext error
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		accounts: make(map[string]domain.Account),
		counters: make(map[string]int64),
	}
}

type txKey struct{}

// RunInTx implements repositories.UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Orders() repositories.OrderRepository     { return orderRepo{s} }
func (s *Store) Products() repositories.ProductRepository { return productRepo{s} }
func (s *Store) Accounts() repositories.AccountRepository { return accountRepo{s} }
func (s *Store) Counters() repositories.CounterRepository { return counterRepo{s} }

// PutProduct seeds a product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = cloneProduct(product)
}

// PutAccount seeds an account.
func (s *Store) PutAccount(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.Cart = account.Cart.Clone()
	s.accounts[account.ID] = account
}

// PutOrder seeds an order.
func (s *Store) PutOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
}

// Product returns the stored product for assertions.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return cloneProduct(p), ok
}

// Account returns the stored account for assertions.
func (s *Store) Account(id string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	a.Cart = a.Cart.Clone()
	return a, ok
}

// Order returns the stored order for assertions.
func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return cloneOrder(o), ok
}

// OrderCount reports how many orders are stored.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

type storeSnapshot struct {
	orders   map[string]domain.Order
	products map[string]domain.Product
	accounts map[string]domain.Account
	counters map[string]int64
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		orders:   make(map[string]domain.Order, len(s.orders)),
		products: make(map[string]domain.Product, len(s.products)),
		accounts: make(map[string]domain.Account, len(s.accounts)),
		counters: make(map[string]int64, len(s.counters)),
	}
	for k, v := range s.orders {
		snap.orders[k] = cloneOrder(v)
	}
	for k, v := range s.products {
		snap.products[k] = cloneProduct(v)
	}
	for k, v := range s.accounts {
		v.Cart = v.Cart.Clone()
		snap.accounts[k] = v
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.products = snap.products
	s.accounts = snap.accounts
	s.counters = snap.counters
}

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if _, exists := r.s.orders[order.ID]; exists {
		return &Error{msg: "memory: order " + order.ID + " exists", conflict: true}
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.Order{}, err
	}
	order, ok := r.s.orders[strings.TrimSpace(id)]
	if !ok {
		return domain.Order{}, notFound("order", id)
	}
	return cloneOrder(order), nil
}

func (r orderRepo) FindRecent(_ context.Context, q repositories.RecentOrderQuery) (domain.Order, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.Order{}, false, err
	}
	var (
		best  domain.Order
		found bool
	)
	for _, order := range r.s.orders {
		if order.UserID != q.UserID || order.Amount != q.Amount || order.CreatedAt.Before(q.Since) {
			continue
		}
		if !found || order.CreatedAt.After(best.CreatedAt) {
			best, found = order, true
		}
	}
	return cloneOrder(best), found, nil
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Excludes(order.Status) {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r orderRepo) AppendReviewedItem(_ context.Context, orderID, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	order, ok := r.s.orders[orderID]
	if !ok {
		return notFound("order", orderID)
	}
	if !order.HasReviewed(key) {
		order.ReviewedItems = append(order.ReviewedItems, key)
		order.UpdatedAt = time.Now().UTC()
	}
	r.s.orders[orderID] = order
	return nil
}

type productRepo struct{ s *Store }

func (r productRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.Product{}, err
	}
	product, ok := r.s.products[strings.TrimSpace(id)]
	if !ok {
		return domain.Product{}, notFound("product", id)
	}
	return cloneProduct(product), nil
}

func (r productRepo) MutateVariants(_ context.Context, id string, fn repositories.VariantMutation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	product, ok := r.s.products[strings.TrimSpace(id)]
	if !ok {
		return notFound("product", id)
	}
	next, err := fn(cloneProduct(product).Variants)
	if err != nil {
		return err
	}
	product.Variants = next
	r.s.products[product.ID] = product
	return nil
}

func (r productRepo) AppendReview(_ context.Context, id string, review domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	product, ok := r.s.products[strings.TrimSpace(id)]
	if !ok {
		return notFound("product", id)
	}
	product.Reviews = append(product.Reviews, review)
	r.s.products[product.ID] = product
	return nil
}

type accountRepo struct{ s *Store }

func (r accountRepo) FindByID(_ context.Context, id string) (domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.Account{}, err
	}
	account, ok := r.s.accounts[strings.TrimSpace(id)]
	if !ok {
		return domain.Account{}, notFound("account", id)
	}
	account.Cart = account.Cart.Clone()
	return account, nil
}

func (r accountRepo) ClearCart(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	account, ok := r.s.accounts[id]
	if !ok {
		return notFound("account", id)
	}
	account.Cart = domain.Cart{}
	r.s.accounts[id] = account
	return nil
}

func (r accountRepo) MutateCart(_ context.Context, id string, fn repositories.CartMutation) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return nil, err
	}
	account, ok := r.s.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	next, err := fn(account.Cart.Clone())
	if err != nil {
		return nil, err
	}
	account.Cart = next.Clone()
	r.s.accounts[id] = account
	return next.Clone(), nil
}

type counterRepo struct{ s *Store }

func (r counterRepo) Next(_ context.Context, id string, step int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(id) == "" || step <= 0 {
		return 0, repositories.NewCounterError("counters.next", repositories.CounterErrorInvalidInput, "invalid counter request", nil)
	}
	r.s.counters[id] += step
	return r.s.counters[id], nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	o.ReviewedItems = append([]string(nil), o.ReviewedItems...)
	return o
}

func cloneProduct(p domain.Product) domain.Product {
	p.Variants = append([]domain.Variant(nil), p.Variants...)
	p.Reviews = append([]domain.Review(nil), p.Reviews...)
	return p
}
