// Package whatsapp renders checkout summaries as pre-filled wa.me links.
package whatsapp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/pricing"
)

// Options controls store specific wording
type Options struct {
	StoreName      string
	CurrencySymbol string
}

// BuildMessage renders the order intent as the text the customer sends
func BuildMessage(intent *models.OrderIntent, opts Options) string {
	money := func(v int64) string { return pricing.FormatMoney(v, opts.CurrencySymbol) }

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s, I would like to place an order.\n\n", opts.StoreName)

	for i, l := range intent.Lines {
		fmt.Fprintf(&b, "%d. %s", i+1, l.ProductName)
		if l.Condition != "" {
			fmt.Fprintf(&b, " (%s)", l.Condition.Label())
		}
		fmt.Fprintf(&b, " x%d = %s\n", l.Quantity, money(l.LineTotal))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", money(intent.Totals.Subtotal))
	if intent.Totals.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -%s\n", money(intent.Totals.Discount))
	}
	fmt.Fprintf(&b, "Total: %s\n\n", money(intent.Totals.Total))

	fmt.Fprintf(&b, "Name: %s\n", intent.FullName)
	fmt.Fprintf(&b, "Phone: %s\n", intent.Phone)
	if intent.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", intent.Email)
	}
	if intent.Location != "" {
		fmt.Fprintf(&b, "Delivery location: %s\n", intent.Location)
	}
	if intent.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", intent.Note)
	}

	fmt.Fprintf(&b, "\nOrder ref: %s", intent.Reference)
	return b.String()
}

// Link builds https://wa.me/<digits>?text=<message>
func Link(phone, text string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + Digits(phone) + "?text=" + escaped
}

// Digits strips everything but 0-9 from a phone number
func Digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
