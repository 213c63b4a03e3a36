package domain

import "testing"

func sampleVariants() []Variant {
	return []Variant{
		{Color: "Red", Fabric: "Cotton", Code: "RC-01", Stock: 5},
		{Color: "Blue", LegacyType: "Silk", Code: "", Stock: 3},
		{Color: "blue ", Fabric: "Linen", Code: "BL-02", Stock: 8},
		{Color: "Green", Stock: 1},
	}
}

func TestMatchVariant(t *testing.T) {
	cases := []struct {
		name     string
		sel      VariantSelector
		wantIdx  int
		strategy MatchStrategy
	}{
		{name: "code wins over color and fabric", sel: VariantSelector{Code: "BL-02", Color: "Red", Fabric: "Cotton"}, wantIdx: 2, strategy: MatchByCode},
		{name: "code is trimmed", sel: VariantSelector{Code: "  RC-01 "}, wantIdx: 0, strategy: MatchByCode},
		{name: "code is case sensitive", sel: VariantSelector{Code: "rc-01", Color: "green"}, wantIdx: 3, strategy: MatchByColor},
		{name: "color and fabric folded", sel: VariantSelector{Color: " BLUE", Fabric: "linen"}, wantIdx: 2, strategy: MatchByColorFabric},
		{name: "legacy type acts as fabric", sel: VariantSelector{Color: "blue", Fabric: "SILK"}, wantIdx: 1, strategy: MatchByColorFabric},
		{name: "color only", sel: VariantSelector{Color: "GREEN"}, wantIdx: 3, strategy: MatchByColor},
		{name: "unknown fabric falls to color", sel: VariantSelector{Color: "red", Fabric: "wool"}, wantIdx: 0, strategy: MatchByColor},
		{name: "nothing matches", sel: VariantSelector{Code: "zzz", Color: "purple", Fabric: "denim"}, wantIdx: 0, strategy: MatchFallback},
		{name: "empty selector", sel: VariantSelector{}, wantIdx: 0, strategy: MatchFallback},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, strategy := MatchVariant(sampleVariants(), tc.sel)
			if idx != tc.wantIdx || strategy != tc.strategy {
				t.Fatalf("expected (%d, %s), got (%d, %s)", tc.wantIdx, tc.strategy, idx, strategy)
			}
		})
	}
}

func TestMatchVariantExactCodeAlwaysWins(t *testing.T) {
	variants := sampleVariants()
	for want, v := range variants {
		if v.Code == "" {
			continue
		}
		for _, noise := range []VariantSelector{{Color: "Green"}, {Color: "Blue", Fabric: "Silk"}, {}} {
			noise.Code = v.Code
			got, strategy := MatchVariant(variants, noise)
			if got != want || strategy != MatchByCode {
				t.Fatalf("code %q with %+v: expected %d, got %d (%s)", v.Code, noise, want, got, strategy)
			}
		}
	}
}

func TestMatchVariantEmptyList(t *testing.T) {
	idx, strategy := MatchVariant(nil, VariantSelector{Code: "x"})
	if idx != -1 || strategy != MatchNone {
		t.Fatalf("expected (-1, none), got (%d, %s)", idx, strategy)
	}
}

func TestNormalizeVariantKeepsCanonicalFabric(t *testing.T) {
	v := NormalizeVariant(Variant{Fabric: "Cotton", LegacyType: "Silk"})
	if v.Fabric != "Cotton" {
		t.Fatalf("expected canonical fabric to win, got %q", v.Fabric)
	}
	v = NormalizeVariant(Variant{LegacyType: "Silk"})
	if v.Fabric != "Silk" {
		t.Fatalf("expected legacy type to populate fabric, got %q", v.Fabric)
	}
}

func TestDeductStockNeverNegative(t *testing.T) {
	for stock := 0; stock <= 6; stock++ {
		for qty := 0; qty <= 8; qty++ {
			got := DeductStock(stock, qty)
			want := stock - qty
			if want < 0 {
				want = 0
			}
			if got != want {
				t.Fatalf("DeductStock(%d, %d) = %d, want %d", stock, qty, got, want)
			}
		}
	}
	if got := DeductStock(4, -2); got != 4 {
		t.Fatalf("negative quantity must not add stock, got %d", got)
	}
}
