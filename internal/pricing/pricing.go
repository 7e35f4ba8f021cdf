// Package pricing holds the storefront money arithmetic. All amounts are
// integer minor currency units.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xenastore/storefront/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hundred = decimal.NewFromInt(100)

// ApplyDiscount returns the unit price after the discount, never below zero.
// Percent discounts are rounded half away from zero to a whole minor unit.
func ApplyDiscount(price int64, d models.Discount) int64 {
	if price <= 0 {
		return 0
	}

	var off int64
	switch d.Type {
	case models.DiscountPercent:
		pct := clamp(d.Value, 0, 100)
		off = decimal.NewFromInt(price).
			Mul(decimal.NewFromInt(pct)).
			Div(hundred).
			Round(0).
			IntPart()
	case models.DiscountFixed:
		off = max(d.Value, 0)
	}

	return max(price-off, 0)
}

// Line is the minimal input needed to price a cart line
type Line struct {
	UnitPrice int64
	Discount  models.Discount
	Quantity  int
}

// Amounts is a priced line
type Amounts struct {
	FinalUnitPrice int64
	Subtotal       int64
	Discount       int64
	Total          int64
}

// Price computes the amounts of a single line
func Price(l Line) Amounts {
	qty := int64(max(l.Quantity, 0))
	unit := max(l.UnitPrice, 0)
	final := ApplyDiscount(unit, l.Discount)

	return Amounts{
		FinalUnitPrice: final,
		Subtotal:       unit * qty,
		Discount:       (unit - final) * qty,
		Total:          final * qty,
	}
}

// Summarize adds up every line into cart totals
func Summarize(lines []Line) models.Totals {
	var t models.Totals
	for _, l := range lines {
		a := Price(l)
		t.ItemCount += max(l.Quantity, 0)
		t.Subtotal += a.Subtotal
		t.Discount += a.Discount
		t.Total += a.Total
	}
	return t
}

var grouping = message.NewPrinter(language.English)

// FormatMoney renders minor units as "<symbol>1,234.50"
func FormatMoney(amount int64, symbol string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	d := decimal.New(amount, -2)
	whole := d.IntPart()
	frac := d.Sub(decimal.NewFromInt(whole)).StringFixed(2)

	return sign + symbol + grouping.Sprintf("%d", whole) + strings.TrimPrefix(frac, "0")
}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}
