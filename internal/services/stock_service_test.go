package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories/memory"
)

func TestStockServiceDeduct(t *testing.T) {
	store := memory.NewStore()
	seedStorefront(store)
	store.PutProduct(domain.Product{ID: "EMPTY", Name: "No variants"})

	var events []string
	svc, err := NewStockService(StockServiceDeps{
		Products: store.Products(),
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}

	report := svc.Deduct(context.Background(), []OrderItem{
		{ProductID: "P1", Code: "BS", Color: "Red", Quantity: 4},
		{ProductID: "P1", Color: "blue", Fabric: "SILK", Quantity: 1},
		{ProductID: "MISSING", Quantity: 1},
		{ProductID: "P1", Color: "Green", Quantity: 1},
		{ProductID: "P1", Quantity: 0},
		{ProductID: "EMPTY", Quantity: 1},
	})

	want := []struct {
		outcome  DeductionOutcome
		strategy domain.MatchStrategy
	}{
		{DeductionApplied, domain.MatchByCode},
		{DeductionApplied, domain.MatchByColorFabric},
		{DeductionFailed, domain.MatchNone},
		{DeductionApplied, domain.MatchFallback},
		{DeductionSkipped, domain.MatchNone},
		{DeductionFailed, domain.MatchNone},
	}
	if len(report.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(report.Results))
	}
	for i, w := range want {
		got := report.Results[i]
		if got.Outcome != w.outcome || got.Strategy != w.strategy {
			t.Fatalf("result %d: expected %s/%s, got %s/%s", i, w.outcome, w.strategy, got.Outcome, got.Strategy)
		}
	}
	if report.Failed() != 2 {
		t.Fatalf("expected 2 failures, got %d", report.Failed())
	}
	if !errors.Is(report.Results[5].Err, errProductHasNoVariants) {
		t.Fatalf("expected no-variants error, got %v", report.Results[5].Err)
	}

	first := report.Results[0]
	if first.Previous != 1 || first.Remaining != 0 {
		t.Fatalf("expected clamp to zero, got %d -> %d", first.Previous, first.Remaining)
	}

	product, _ := store.Product("P1")
	if product.Variants[0].Stock != 4 {
		t.Fatalf("fallback should hit the first variant, stock %d", product.Variants[0].Stock)
	}
	if product.Variants[1].Stock != 0 {
		t.Fatalf("expected blue variant clamped at 0, got %d", product.Variants[1].Stock)
	}
	if product.Variants[1].Fabric != "" || product.Variants[1].LegacyType != "Silk" {
		t.Fatalf("legacy variant attributes must be preserved: %+v", product.Variants[1])
	}

	var failed, fallback int
	for _, e := range events {
		switch e {
		case "stock.deduction.failed":
			failed++
		case "stock.deduction.fallback_variant":
			fallback++
		}
	}
	if failed != 2 || fallback != 1 {
		t.Fatalf("unexpected log events %v", events)
	}
}

func TestStockServiceDeductionNeverNegative(t *testing.T) {
	for stock := 0; stock <= 6; stock++ {
		for qty := 0; qty <= 8; qty++ {
			store := memory.NewStore()
			store.PutProduct(domain.Product{ID: "P", Variants: []domain.Variant{{Code: "C", Stock: stock}}})
			svc := newTestStockService(store)
			svc.Deduct(context.Background(), []OrderItem{{ProductID: "P", Code: "C", Quantity: qty}})

			product, _ := store.Product("P")
			want := stock - qty
			if want < 0 {
				want = 0
			}
			if product.Variants[0].Stock != want {
				t.Fatalf("stock=%d qty=%d: expected %d, got %d", stock, qty, want, product.Variants[0].Stock)
			}
		}
	}
}
