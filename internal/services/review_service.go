package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/textutil"
	"github.com/storefront/api/internal/repositories"
)

const anonymousReviewer = "Anonymous"

var (
	// ErrReviewInvalidInput indicates the review payload failed validation.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewForbidden indicates the caller does not own the order.
	ErrReviewForbidden = errors.New("review: forbidden")
	// ErrReviewNotFound indicates the order, item or product could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewConflict indicates the order line was already reviewed.
	ErrReviewConflict = errors.New("review: conflict")
)

// ReviewServiceDeps enumerates collaborators required by the review service.
type ReviewServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Accounts    repositories.AccountRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	accounts   repositories.AccountRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService constructs the order-bound review service.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("review service: account repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &reviewService{
		orders:     deps.Orders,
		products:   deps.Products,
		accounts:   deps.Accounts,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Submit records a review for a line of a delivered order owned by the caller. Reads happen
// before writes so the whole submission fits in one transaction.
func (s *reviewService) Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Review{}, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, fmt.Errorf("%w: Rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" || productID == "" {
		return Review{}, fmt.Errorf("%w: orderId and productId are required", ErrReviewInvalidInput)
	}
	variantCode := strings.TrimSpace(cmd.VariantCode)
	variantColor := strings.TrimSpace(cmd.VariantColor)
	key := domain.ReviewKey(productID, variantCode, variantColor)

	var review Review
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return fmt.Errorf("%w: Order not found", ErrReviewNotFound)
			}
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: Not your order", ErrReviewForbidden)
		}
		if order.Status != domain.OrderStatusDelivered {
			return fmt.Errorf("%w: Can only review delivered orders", ErrReviewInvalidInput)
		}
		if order.HasReviewed(key) {
			return fmt.Errorf("%w: You have already reviewed this item", ErrReviewConflict)
		}
		if _, ok := findReviewableItem(order.Items, productID, variantCode, variantColor); !ok {
			return fmt.Errorf("%w: Item not found in this order", ErrReviewNotFound)
		}

		userName := anonymousReviewer
		if account, err := s.accounts.FindByID(txCtx, userID); err == nil && strings.TrimSpace(account.Name) != "" {
			userName = strings.TrimSpace(account.Name)
		}

		if _, err := s.products.FindByID(txCtx, productID); err != nil {
			if isRepositoryNotFound(err) {
				return fmt.Errorf("%w: Product not found", ErrReviewNotFound)
			}
			return err
		}

		review = Review{
			ID:           "rev_" + strings.ToLower(s.newID()),
			UserID:       userID,
			UserName:     userName,
			Rating:       cmd.Rating,
			Comment:      textutil.PlainText(cmd.Comment),
			VariantCode:  variantCode,
			VariantColor: variantColor,
			OrderID:      orderID,
			CreatedAt:    s.clock(),
		}
		if err := s.products.AppendReview(txCtx, productID, review); err != nil {
			return err
		}
		return s.orders.AppendReviewedItem(txCtx, orderID, key)
	})
	if err != nil {
		return Review{}, s.mapError(err)
	}

	s.logger(ctx, "review.submitted", map[string]any{
		"orderId":   orderID,
		"productId": productID,
		"key":       key,
		"rating":    review.Rating,
	})
	return review, nil
}

// ListForProduct returns a product's reviews newest first with the average rounded to one decimal.
// A variant code filter wins over a color filter.
func (s *reviewService) ListForProduct(ctx context.Context, filter ReviewFilter) (ReviewSummary, error) {
	productID := strings.TrimSpace(filter.ProductID)
	if productID == "" {
		return ReviewSummary{}, fmt.Errorf("%w: productId is required", ErrReviewInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return ReviewSummary{}, fmt.Errorf("%w: Product not found", ErrReviewNotFound)
		}
		return ReviewSummary{}, s.mapError(err)
	}

	code := strings.TrimSpace(filter.VariantCode)
	color := strings.TrimSpace(filter.VariantColor)
	reviews := make([]Review, 0, len(product.Reviews))
	for _, review := range product.Reviews {
		switch {
		case code != "" && review.VariantCode != code:
			continue
		case code == "" && color != "" && review.VariantColor != color:
			continue
		}
		reviews = append(reviews, review)
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})

	summary := ReviewSummary{Reviews: reviews, Total: len(reviews)}
	if len(reviews) > 0 {
		sum := 0
		for _, review := range reviews {
			sum += review.Rating
		}
		summary.AvgRating = math.Round(float64(sum)/float64(len(reviews))*10) / 10
	}
	return summary, nil
}

func (s *reviewService) mapError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrReviewInvalidInput, ErrReviewForbidden, ErrReviewNotFound, ErrReviewConflict} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}
	return err
}

// findReviewableItem matches an order line for the product by exact code, then folded color,
// then by product alone when the caller named no variant.
func findReviewableItem(items []OrderItem, productID, code, color string) (OrderItem, bool) {
	folded := cases.Fold().String(color)
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) != productID {
			continue
		}
		if code != "" && strings.TrimSpace(item.Code) == code {
			return item, true
		}
		if folded != "" && cases.Fold().String(strings.TrimSpace(item.Color)) == folded {
			return item, true
		}
		if code == "" && color == "" {
			return item, true
		}
	}
	return OrderItem{}, false
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
