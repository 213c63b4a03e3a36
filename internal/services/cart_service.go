package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/storefront/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the cart command was malformed.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrAccountNotFound indicates the cart owner does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrCartUnavailable indicates the backing store could not be reached.
	ErrCartUnavailable = errors.New("cart: repository unavailable")
)

// CartServiceDeps enumerates collaborators required by the cart service.
type CartServiceDeps struct {
	Accounts repositories.AccountRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	accounts repositories.AccountRepository
	logger   func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs the account cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("cart service: account repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &cartService{accounts: deps.Accounts, logger: logger}, nil
}

func (s *cartService) Get(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return account.Cart.Clone(), nil
}

// Add inserts the item with quantity 1 or increments an existing line. Non-empty variant
// attributes overwrite the stored ones.
func (s *cartService) Add(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID, itemID, err := cartKeys(cmd.UserID, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	color := strings.TrimSpace(cmd.Color)
	kind := strings.TrimSpace(cmd.Type)
	code := strings.TrimSpace(cmd.Code)

	return s.mutate(ctx, userID, func(cart Cart) (Cart, error) {
		line, exists := cart[itemID]
		if !exists {
			cart[itemID] = CartLine{Quantity: 1, Color: color, Type: kind, Code: code}
			return cart, nil
		}
		line.Quantity++
		overwriteVariant(&line, color, kind, code)
		cart[itemID] = line
		return cart, nil
	})
}

// Update sets the quantity of a line; zero or less removes it. Unknown items are created
// without variant attributes.
func (s *cartService) Update(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	userID, itemID, err := cartKeys(cmd.UserID, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(cart Cart) (Cart, error) {
		if cmd.Quantity <= 0 {
			delete(cart, itemID)
			return cart, nil
		}
		line := cart[itemID]
		line.Quantity = cmd.Quantity
		cart[itemID] = line
		return cart, nil
	})
}

// Merge folds a client-side cart into the stored one, summing quantities.
func (s *cartService) Merge(ctx context.Context, cmd MergeCartCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if cmd.Items == nil {
		return nil, fmt.Errorf("%w: cartData required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, userID, func(cart Cart) (Cart, error) {
		for rawID, incoming := range cmd.Items {
			itemID := strings.TrimSpace(rawID)
			if itemID == "" || incoming.Quantity <= 0 {
				continue
			}
			color := strings.TrimSpace(incoming.Color)
			kind := strings.TrimSpace(incoming.Type)
			code := strings.TrimSpace(incoming.Code)

			line, exists := cart[itemID]
			if !exists {
				cart[itemID] = CartLine{Quantity: incoming.Quantity, Color: color, Type: kind, Code: code}
				continue
			}
			line.Quantity += incoming.Quantity
			overwriteVariant(&line, color, kind, code)
			cart[itemID] = line
		}
		return cart, nil
	})
}

func (s *cartService) mutate(ctx context.Context, userID string, fn repositories.CartMutation) (Cart, error) {
	cart, err := s.accounts.MutateCart(ctx, userID, fn)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return cart, nil
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}

func cartKeys(userID, itemID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return "", "", fmt.Errorf("%w: Item ID required", ErrCartInvalidInput)
	}
	return userID, itemID, nil
}

func overwriteVariant(line *CartLine, color, kind, code string) {
	if color != "" {
		line.Color = color
	}
	if kind != "" {
		line.Type = kind
	}
	if code != "" {
		line.Code = code
	}
}
