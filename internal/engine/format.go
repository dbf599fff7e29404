package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders whole US dollars with thousands separators,
// rounding half away from zero: 1950.05 -> "$1,950", -1290.5 -> "-$1,291".
func FormatCurrency(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(0)
	s := printer.Sprintf("%d", d.Abs().IntPart())
	if d.IsNegative() {
		return "-$" + s
	}
	return "$" + s
}

// FormatPercent renders a fraction as a percentage with one decimal.
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}
