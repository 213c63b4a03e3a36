package invoice

import (
	"bytes"
	"strings"
	"testing"
	"time"

	domain "github.com/storefront/api/internal/domain"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "ORD-240301-000007",
		Amount:      1499,
		CreatedAt:   time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC),
		Items: []domain.OrderItem{
			{ProductID: "P1", Name: "Kurta", Code: "RC", Price: 999, Quantity: 1},
			{ProductID: "P2", Name: "Dupatta", Price: 500, Quantity: 1},
		},
	}
}

func TestRendererWritesInvoiceFields(t *testing.T) {
	r := NewRenderer()
	r.compress = false

	out, err := r.Render(sampleOrder(), "asha@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("missing pdf header")
	}

	for _, want := range []string{
		"(Invoice)",
		"Order ID: ORD-240301-000007",
		"Customer Email: asha@example.com",
		"Order Date: 01 Mar 2024, 10:00 AM",
		"Products:",
		"1. Kurta \\(Code: RC\\) x 1 = INR 999.00",
		"2. Dupatta x 1 = INR 500.00",
		"Total: INR 1",
	} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected invoice to contain %q", want)
		}
	}
}

func TestRendererFallsBackForMissingData(t *testing.T) {
	fixed := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	r := NewRenderer(WithLocation(time.UTC), WithClock(func() time.Time { return fixed }))
	r.compress = false

	order := sampleOrder()
	order.OrderNumber = ""
	order.CreatedAt = time.Time{}

	out, err := r.Render(order, "  ")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Order ID: ord_1",
		"Customer Email: N/A",
		"Order Date: 02 May 2024, 12:00 PM",
	} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected invoice to contain %q", want)
		}
	}
}

func TestRendererCompressedOutputIsValidPDF(t *testing.T) {
	out, err := NewRenderer().Render(sampleOrder(), "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) || !bytes.Contains(out, []byte("%%EOF")) {
		t.Fatalf("output is not a complete pdf")
	}
}
