package format

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Embed colours.
const (
	ColorSuccess = 0x00FF00
	ColorError   = 0xFF0000
	ColorWarning = 0xFFFF00
	ColorInfo    = 0x0000FF
	ColorUp      = 0x00FF00
	ColorDown    = 0xFF0000
	ColorFlat    = 0x808080
)

var printer = message.NewPrinter(language.English)

// Price renders p as dollars with thousands separators, e.g. $1,234.56.
func Price(p decimal.Decimal) string {
	s := printer.Sprintf("%.2f", p.Abs().Round(2).InexactFloat64())
	if p.IsNegative() {
		return "-$" + s
	}
	return "$" + s
}

// Percent renders pct with two decimals and an explicit + for gains.
func Percent(pct decimal.Decimal) string {
	s := pct.StringFixed(2) + "%"
	if pct.Round(2).IsPositive() {
		return "+" + s
	}
	return s
}

func Ticker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func Emoji(change decimal.Decimal) string {
	switch change.Sign() {
	case 1:
		return "📈"
	case -1:
		return "📉"
	default:
		return "➡️"
	}
}

func Color(change decimal.Decimal) int {
	switch change.Sign() {
	case 1:
		return ColorUp
	case -1:
		return ColorDown
	default:
		return ColorFlat
	}
}

// ChangePct is (current-base)/base*100. A zero base yields zero.
func ChangePct(current, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return current.Sub(base).Div(base).Mul(decimal.NewFromInt(100))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
