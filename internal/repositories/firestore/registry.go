package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

// Registry wires every Firestore repository onto one shared provider.
type Registry struct {
	*pfirestore.UnitOfWork

	provider *pfirestore.Provider
	orders   *OrderRepository
	products *ProductRepository
	accounts *AccountRepository
	counters *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all repositories.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	accounts, err := NewAccountRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		UnitOfWork: pfirestore.NewUnitOfWork(provider),
		provider:   provider,
		orders:     orders,
		products:   products,
		accounts:   accounts,
		counters:   counters,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Accounts() repositories.AccountRepository { return r.accounts }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Close releases the shared client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
