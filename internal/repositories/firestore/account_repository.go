package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

// AccountRepository reads user documents and owns their embedded cart map.
type AccountRepository struct {
	base *pfirestore.BaseRepository[userDocument]
	uow  *pfirestore.UnitOfWork
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a Firestore-backed account repository.
func NewAccountRepository(provider *pfirestore.Provider) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	return &AccountRepository{
		base: pfirestore.NewBaseRepository[userDocument](provider, usersCollection),
		uow:  pfirestore.NewUnitOfWork(provider),
	}, nil
}

// FindByID loads an account.
func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return domain.Account{}, err
	}
	return decodeAccount(doc.ID, doc.Data), nil
}

// ClearCart empties the cart. It joins the caller's transaction when one is active.
func (r *AccountRepository) ClearCart(ctx context.Context, accountID string) error {
	return r.base.Update(ctx, strings.TrimSpace(accountID), []firestore.Update{
		{Path: "cartData", Value: map[string]any{}},
	})
}

// MutateCart applies fn to a copy of the cart and stores the result transactionally.
func (r *AccountRepository) MutateCart(ctx context.Context, accountID string, fn repositories.CartMutation) (domain.Cart, error) {
	if fn == nil {
		return nil, errors.New("account repository: cart mutation is required")
	}
	id := strings.TrimSpace(accountID)

	var saved domain.Cart
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(decodeAccount(doc.ID, doc.Data).Cart.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			next = domain.Cart{}
		}
		if err := r.base.Update(ctx, id, []firestore.Update{{Path: "cartData", Value: encodeCart(next)}}); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
