package domain

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyINR is the only currency the storefront settles in.
const CurrencyINR = "INR"

var amountLocale = language.MustParse("en-IN")

// MinorUnits converts a rupee amount to paise, rounding half away from zero.
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// FormatAmount renders an amount with grouping separators and two decimals, e.g. "INR 1,250.00".
func FormatAmount(amount float64) string {
	rounded, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return message.NewPrinter(amountLocale).Sprintf("%s %.2f", CurrencyINR, rounded)
}

// LineTotal returns price*quantity computed in decimal arithmetic.
func LineTotal(price float64, quantity int) float64 {
	total, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).Float64()
	return total
}
