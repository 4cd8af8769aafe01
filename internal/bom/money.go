package bom

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var wonPrinter = message.NewPrinter(language.Korean)

// RoundWon rounds an amount to the nearest won. Only output fields use it;
// aggregation always runs on the unrounded float. Amounts outside the int64
// range saturate and NaN rounds to zero.
func RoundWon(amount float64) int64 {
	switch {
	case math.IsNaN(amount):
		return 0
	case amount >= math.MaxInt64:
		return math.MaxInt64
	case amount <= math.MinInt64:
		return math.MinInt64
	}
	return decimal.NewFromFloat(amount).Round(0).IntPart()
}

// FormatWon renders an amount as grouped won, e.g. ₩4,400.
func FormatWon(amount float64) string {
	return wonPrinter.Sprintf("₩%d", RoundWon(amount))
}
