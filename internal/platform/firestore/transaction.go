package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

type txContextKey struct{}

// WithTx stores tx in the context so repositories join the surrounding transaction.
func WithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the active transaction, if any.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// UnitOfWork runs callbacks inside Firestore transactions. Repositories built on BaseRepository
// pick the transaction up from the context. Firestore requires every read to precede every write,
// and transactions cannot nest: calling RunInTx inside fn reuses the outer transaction.
type UnitOfWork struct {
	provider *Provider
	opts     []TxOption
}

// NewUnitOfWork binds a UnitOfWork to the provider.
func NewUnitOfWork(provider *Provider, opts ...TxOption) *UnitOfWork {
	return &UnitOfWork{provider: provider, opts: opts}
}

// RunInTx executes fn within a transaction. fn may be retried on contention.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	if u == nil || u.provider == nil {
		return WrapError("transaction", errors.New("firestore: provider is nil"))
	}
	client, err := u.provider.Client(ctx)
	if err != nil {
		return err
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range u.opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	var fnErr error
	err = client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = fn(WithTx(ctx, tx))
		return fnErr
	}, firestore.MaxAttempts(cfg.attempts))
	if err != nil && err == fnErr {
		// Callback errors are already classified by the repositories that produced them.
		return err
	}
	return WrapError("transaction", err)
}
