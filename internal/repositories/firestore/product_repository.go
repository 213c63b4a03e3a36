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

// ProductRepository reads catalog products and applies variant and review mutations.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
	uow  *pfirestore.UnitOfWork
	now  func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		uow:  pfirestore.NewUnitOfWork(provider),
		now:  time.Now,
	}, nil
}

// FindByID loads a product with its variants and reviews.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// MutateVariants rewrites the variant array inside a transaction. Firestore cannot address a
// single array element, so the whole array is read, mutated and written back.
func (r *ProductRepository) MutateVariants(ctx context.Context, productID string, fn repositories.VariantMutation) error {
	if fn == nil {
		return errors.New("product repository: variant mutation is required")
	}
	id := strings.TrimSpace(productID)

	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			return err
		}

		raw := doc.Data.Variants
		current := make([]domain.Variant, len(raw))
		for i, v := range raw {
			current[i] = variantFromMap(v)
		}

		next, err := fn(append([]domain.Variant(nil), current...))
		if err != nil {
			return err
		}

		encoded := make([]any, len(next))
		for i, v := range next {
			if i < len(raw) {
				encoded[i] = mergeVariant(raw[i], current[i], v)
			} else {
				encoded[i] = variantToMap(v)
			}
		}

		return r.base.Update(ctx, id, []firestore.Update{
			{Path: "variants", Value: encoded},
			{Path: "updatedAt", Value: r.now().UTC()},
		})
	})
}

// AppendReview adds the review to the product's embedded review list.
func (r *ProductRepository) AppendReview(ctx context.Context, productID string, review domain.Review) error {
	return r.base.Update(ctx, strings.TrimSpace(productID), []firestore.Update{
		{Path: "reviews", Value: firestore.ArrayUnion(encodeReview(review))},
	})
}
