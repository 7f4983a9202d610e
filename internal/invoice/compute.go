// Package invoice holds the invoice computation model, its validation,
// persistence lifecycle, printing and HTTP handlers.
//
// Arithmetic is done in decimal so amounts such as 0.1 + 0.2 add up the
// way they read; currency only changes how an amount is printed.
package invoice

import "github.com/shopspring/decimal"

// Totals are the amounts derived from line items and tax rates.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	VATAmount float64 `json:"vatAmount"`
	TDSAmount float64 `json:"tdsAmount"`
	Total     float64 `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// Compute derives subtotal, VAT, TDS and total. An empty item list
// yields zero totals.
func Compute(items []LineItem, vatPercent, tdsPercent float64) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineAmount(item))
	}
	vat := subtotal.Mul(decimal.NewFromFloat(vatPercent)).Div(hundred)
	tds := subtotal.Mul(decimal.NewFromFloat(tdsPercent)).Div(hundred)
	return Totals{
		Subtotal:  subtotal.InexactFloat64(),
		VATAmount: vat.InexactFloat64(),
		TDSAmount: tds.InexactFloat64(),
		Total:     subtotal.Add(vat).Sub(tds).InexactFloat64(),
	}
}

// LineAmount is quantity × rate.
func LineAmount(item LineItem) decimal.Decimal {
	return decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.Rate))
}

// Apply recomputes the derived amount fields of inv in place.
func Apply(inv *Invoice) Totals {
	t := Compute(inv.LineItems, inv.VATPercent, inv.TDSPercent)
	inv.Subtotal = t.Subtotal
	inv.VATAmount = t.VATAmount
	inv.TDSAmount = t.TDSAmount
	inv.Total = t.Total
	return t
}

// BalanceDue is the display-only amount still owed: the total for unpaid
// invoices, nothing for paid ones, and total minus amount received for
// partially paid ones.
func BalanceDue(inv Invoice) float64 {
	switch inv.Status {
	case StatusPaid:
		return 0
	case StatusPartial:
		total := decimal.NewFromFloat(inv.Total)
		if inv.AmountReceived == nil {
			return inv.Total
		}
		return total.Sub(decimal.NewFromFloat(*inv.AmountReceived)).InexactFloat64()
	default:
		return inv.Total
	}
}

// Received is the amount paid so far as implied by status.
func Received(inv Invoice) float64 {
	switch inv.Status {
	case StatusPaid:
		return inv.Total
	case StatusPartial:
		if inv.AmountReceived != nil {
			return *inv.AmountReceived
		}
	}
	return 0
}
