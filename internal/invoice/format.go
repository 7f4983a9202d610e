package invoice

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Symbol returns the prefix printed before an amount in currency c.
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "$"
	case INR:
		return "₹"
	default:
		return string(c) + " "
	}
}

// FormatMoney renders amount with two decimals, grouped thousands and the
// currency prefix: $1,234.50, ₹1,234.50, NPR 1,234.50.
func FormatMoney(amount float64, c Currency) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	amount = math.Round(amount*100) / 100
	return sign + c.Symbol() + humanize.FormatFloat("#,###.##", amount)
}

// FormatDate renders t the way invoices print dates, e.g. "March 5, 2025".
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("January 2, 2006")
}

// FormatQuantity drops a trailing ".00" from whole quantities.
func FormatQuantity(q float64) string {
	if q == math.Trunc(q) {
		return humanize.Comma(int64(q))
	}
	return humanize.FormatFloat("#,###.##", q)
}
