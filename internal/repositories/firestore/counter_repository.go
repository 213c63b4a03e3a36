package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	counters *pfirestore.BaseRepository[counterDocument]
	uow      *pfirestore.UnitOfWork
	now      func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		uow:      pfirestore.NewUnitOfWork(provider),
		now:      time.Now,
	}, nil
}

// Next atomically increments the counter and returns the new value. Missing counters start at step.
// It must not be called inside another transaction's read phase after a write.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError("counters.next", repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError("counters.next", repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	var next int64
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.counters.Get(ctx, id)
		var current int64
		switch {
		case err == nil:
			current = doc.Data.CurrentValue
		case isNotFound(err):
		default:
			return err
		}
		if current < 0 {
			return repositories.NewCounterError("counters.next", repositories.CounterErrorCorrupt, fmt.Sprintf("counter %s holds negative value %d", id, current), nil)
		}

		next = current + step
		return r.counters.Set(ctx, id, counterDocument{CurrentValue: next, UpdatedAt: r.now().UTC()})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
