package domain

import (
	"strings"
	"testing"
)

func TestParseAdminStatus(t *testing.T) {
	for _, status := range AdminSettableStatuses {
		got, ok := ParseAdminStatus(" " + string(status) + " ")
		if !ok || got != status {
			t.Fatalf("expected %q to parse, got %q %v", status, got, ok)
		}
	}
	for _, raw := range []string{"Shipped", "delivered", "", string(OrderStatusPaymentPending)} {
		if _, ok := ParseAdminStatus(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestReviewKey(t *testing.T) {
	if got := ReviewKey("p1", "CODE", "Red"); got != "p1_CODE" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ReviewKey("p1", "", "Red"); got != "p1_Red" {
		t.Fatalf("unexpected key %q", got)
	}
	order := Order{ReviewedItems: []string{"p1_Red"}}
	if !order.HasReviewed("p1_Red") || order.HasReviewed("p1_CODE") {
		t.Fatalf("unexpected HasReviewed result")
	}
}

func TestMinorUnitsAndFormatting(t *testing.T) {
	if got := MinorUnits(1000); got != 100000 {
		t.Fatalf("expected 100000 paise, got %d", got)
	}
	if got := MinorUnits(19.99); got != 1999 {
		t.Fatalf("expected 1999 paise, got %d", got)
	}
	if got := FormatAmount(500); got != "INR 500.00" {
		t.Fatalf("unexpected formatted amount %q", got)
	}
	if got := FormatAmount(1250.456); !strings.HasPrefix(got, "INR 1") || !strings.HasSuffix(got, "250.46") {
		t.Fatalf("unexpected formatted amount %q", got)
	}
	if got := LineTotal(499.5, 3); got != 1498.5 {
		t.Fatalf("unexpected line total %v", got)
	}
}

func TestCartCloneIsIndependent(t *testing.T) {
	var nilCart Cart
	if clone := nilCart.Clone(); clone == nil || len(clone) != 0 {
		t.Fatalf("expected empty non-nil clone")
	}
	cart := Cart{"a": {Quantity: 1}}
	clone := cart.Clone()
	clone["a"] = CartLine{Quantity: 5}
	if cart["a"].Quantity != 1 {
		t.Fatalf("clone mutated source")
	}
}
