package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const maxReviewBodySize = 16 * 1024

// ReviewHandlers exposes review submission for buyers and the public review listing.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
	limiter rateLimiter
}

// ReviewHandlerOption customises ReviewHandlers.
type ReviewHandlerOption func(*ReviewHandlers)

// WithReviewRateLimit caps review submissions per user within window.
func WithReviewRateLimit(limit int, window time.Duration) ReviewHandlerOption {
	return func(h *ReviewHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewReviewHandlers constructs review handlers.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, opts ...ReviewHandlerOption) *ReviewHandlers {
	h := &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /review endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/product/{productId}", h.listProductReviews)
	r.Group(func(user chi.Router) {
		if h.authn != nil {
			user.Use(h.authn.RequireUser())
		}
		user.With(limitPerUser(h.limiter)).Post("/submit", h.submitReview)
	})
}

type submitReviewRequest struct {
	OrderID      string `json:"orderId"`
	ProductID    string `json:"productId"`
	VariantCode  string `json:"variantCode"`
	VariantColor string `json:"variantColor"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}

type reviewPayload struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
	VariantCode  string `json:"variantCode"`
	VariantColor string `json:"variantColor"`
	OrderID      string `json:"orderId"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeServiceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req submitReviewRequest
	if !decodeJSONBody(ctx, w, r, maxReviewBodySize, &req, false) {
		return
	}

	_, err := h.reviews.Submit(ctx, services.SubmitReviewCommand{
		UserID:       identity.UserID,
		OrderID:      strings.TrimSpace(req.OrderID),
		ProductID:    strings.TrimSpace(req.ProductID),
		VariantCode:  strings.TrimSpace(req.VariantCode),
		VariantColor: strings.TrimSpace(req.VariantColor),
		Rating:       req.Rating,
		Comment:      req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Review submitted successfully",
	})
}

func (h *ReviewHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeServiceUnavailable(ctx, w, "review")
		return
	}
	query := r.URL.Query()
	summary, err := h.reviews.ListForProduct(ctx, services.ReviewFilter{
		ProductID:    strings.TrimSpace(chi.URLParam(r, "productId")),
		VariantCode:  strings.TrimSpace(query.Get("variantCode")),
		VariantColor: strings.TrimSpace(query.Get("variantColor")),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	reviews := make([]reviewPayload, 0, len(summary.Reviews))
	for _, review := range summary.Reviews {
		reviews = append(reviews, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"reviews":   reviews,
		"avgRating": summary.AvgRating,
		"total":     summary.Total,
	})
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:           review.ID,
		UserID:       review.UserID,
		UserName:     review.UserName,
		Rating:       review.Rating,
		Comment:      review.Comment,
		VariantCode:  review.VariantCode,
		VariantColor: review.VariantColor,
		OrderID:      review.OrderID,
		CreatedAt:    formatTime(review.CreatedAt),
	}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_review", reviewErrorMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("review_forbidden", "Not your order", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", reviewErrorMessage(err), http.StatusNotFound))
	case errors.Is(err, services.ErrReviewConflict):
		httpx.WriteError(ctx, w, httpx.NewError("review_conflict", "You have already reviewed this item", http.StatusConflict))
	case writeRepositoryError(ctx, w, err):
	default:
		httpx.WriteError(ctx, w, httpx.NewError("review_error", err.Error(), http.StatusInternalServerError))
	}
}

// reviewErrorMessage strips the sentinel prefix so clients see only the detail.
func reviewErrorMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		return msg[idx+2:]
	}
	return msg
}
