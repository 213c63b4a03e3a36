package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

const servicesMetricNamespace = "github.com/storefront/api/internal/services"

var errProductHasNoVariants = errors.New("stock: product has no variants")

// StockServiceDeps enumerates collaborators required by the stock service.
type StockServiceDeps struct {
	Products repositories.ProductRepository
	Meter    metric.Meter
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)

	failures         metric.Int64Counter
	failuresEnabled  bool
	fallbacks        metric.Int64Counter
	fallbacksEnabled bool
}

var _ StockService = (*stockService)(nil)

// NewStockService constructs the stock deduction service.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(servicesMetricNamespace)
	}

	failures, failuresErr := meter.Int64Counter(
		"stock.deduction.failures",
		metric.WithDescription("Order lines whose stock could not be deducted"),
	)
	fallbacks, fallbacksErr := meter.Int64Counter(
		"stock.deduction.fallbacks",
		metric.WithDescription("Order lines deducted from the first variant because nothing matched"),
	)

	return &stockService{
		products:         deps.Products,
		logger:           logger,
		failures:         failures,
		failuresEnabled:  failuresErr == nil,
		fallbacks:        fallbacks,
		fallbacksEnabled: fallbacksErr == nil,
	}, nil
}

// Deduct reduces stock for every line independently. A failing line never aborts the rest and
// never fails the caller; deductions are not rolled back.
func (s *stockService) Deduct(ctx context.Context, items []OrderItem) DeductionReport {
	report := DeductionReport{Results: make([]DeductionResult, 0, len(items))}
	for _, item := range items {
		res := s.deductLine(ctx, item)
		report.Results = append(report.Results, res)

		switch res.Outcome {
		case DeductionFailed:
			s.logger(ctx, "stock.deduction.failed", map[string]any{
				"productId": res.ProductID,
				"quantity":  res.Quantity,
				"code":      item.Code,
				"color":     item.Color,
				"error":     res.Err.Error(),
			})
			if s.failuresEnabled {
				s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", res.ProductID)))
			}
		case DeductionApplied:
			if res.Strategy == domain.MatchFallback {
				s.logger(ctx, "stock.deduction.fallback_variant", map[string]any{
					"productId": res.ProductID,
					"code":      item.Code,
					"color":     item.Color,
					"fabric":    item.Fabric,
				})
				if s.fallbacksEnabled {
					s.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", res.ProductID)))
				}
			}
		}
	}
	return report
}

func (s *stockService) deductLine(ctx context.Context, item OrderItem) DeductionResult {
	res := DeductionResult{
		ProductID: strings.TrimSpace(item.ProductID),
		Quantity:  item.Quantity,
		Strategy:  domain.MatchNone,
	}
	if res.ProductID == "" || item.Quantity <= 0 {
		res.Outcome = DeductionSkipped
		return res
	}

	err := s.products.MutateVariants(ctx, res.ProductID, func(variants []domain.Variant) ([]domain.Variant, error) {
		idx, strategy := domain.MatchVariant(variants, item.Selector())
		res.Strategy = strategy
		if idx < 0 {
			return nil, errProductHasNoVariants
		}
		res.Previous = variants[idx].Stock
		variants[idx].Stock = domain.DeductStock(variants[idx].Stock, item.Quantity)
		res.Remaining = variants[idx].Stock
		return variants, nil
	})
	if err != nil {
		res.Outcome = DeductionFailed
		res.Err = err
		return res
	}
	res.Outcome = DeductionApplied
	return res
}
