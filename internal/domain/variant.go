package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// MatchStrategy names the rule that resolved a variant.
type MatchStrategy string

const (
	MatchByCode        MatchStrategy = "code"
	MatchByColorFabric MatchStrategy = "color_fabric"
	MatchByColor       MatchStrategy = "color"
	MatchFallback      MatchStrategy = "fallback_first"
	MatchNone          MatchStrategy = "none"
)

// VariantSelector carries the identifying attributes copied onto an order line.
type VariantSelector struct {
	Code   string
	Color  string
	Fabric string
}

// NormalizeVariant maps the legacy type field onto Fabric so matching only ever
// sees the canonical attribute.
func NormalizeVariant(v Variant) Variant {
	if strings.TrimSpace(v.Fabric) == "" && strings.TrimSpace(v.LegacyType) != "" {
		v.Fabric = v.LegacyType
	}
	return v
}

// NormalizeVariants applies NormalizeVariant to every element of a copy of variants.
func NormalizeVariants(variants []Variant) []Variant {
	out := make([]Variant, len(variants))
	for i, v := range variants {
		out[i] = NormalizeVariant(v)
	}
	return out
}

// MatchVariant locates the inventory variant for sel. Order of precedence:
// exact code, color+fabric, color alone, then index 0. It never fails on a
// non-empty list; callers should log MatchFallback results.
func MatchVariant(variants []Variant, sel VariantSelector) (int, MatchStrategy) {
	if len(variants) == 0 {
		return -1, MatchNone
	}

	if code := strings.TrimSpace(sel.Code); code != "" {
		for i, v := range variants {
			if strings.TrimSpace(v.Code) == code {
				return i, MatchByCode
			}
		}
	}

	color := fold(sel.Color)
	fabric := fold(sel.Fabric)

	if color != "" && fabric != "" {
		for i, v := range variants {
			v = NormalizeVariant(v)
			if fold(v.Color) == color && fold(v.Fabric) == fabric {
				return i, MatchByColorFabric
			}
		}
	}

	if color != "" {
		for i, v := range variants {
			if fold(v.Color) == color {
				return i, MatchByColor
			}
		}
	}

	return 0, MatchFallback
}

// DeductStock returns stock reduced by qty, clamped at zero.
func DeductStock(stock, qty int) int {
	if qty < 0 {
		qty = 0
	}
	if remaining := stock - qty; remaining > 0 {
		return remaining
	}
	return 0
}

// fold builds a fresh Caser per call; Casers keep state and must not be shared.
func fold(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}
