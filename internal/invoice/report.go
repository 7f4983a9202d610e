package invoice

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencySummary aggregates the invoices of one currency.
type CurrencySummary struct {
	Currency    Currency `json:"currency"`
	Count       int      `json:"count"`
	Invoiced    float64  `json:"invoiced"`
	Received    float64  `json:"received"`
	Outstanding float64  `json:"outstanding"`
}

// Report is the dashboard summary.
type Report struct {
	Count      int               `json:"count"`
	ByStatus   map[Status]int    `json:"byStatus"`
	Overdue    int               `json:"overdue"`
	Currencies []CurrencySummary `json:"currencies"`
}

// Summarize counts invoices by status and totals them per currency.
// Amounts are never summed across currencies.
func Summarize(list []Invoice, now time.Time) Report {
	r := Report{
		ByStatus: map[Status]int{StatusUnpaid: 0, StatusPaid: 0, StatusPartial: 0},
	}
	type sums struct {
		count                           int
		invoiced, received, outstanding decimal.Decimal
	}
	per := map[Currency]*sums{}
	for _, inv := range list {
		r.Count++
		r.ByStatus[inv.Status]++
		if overdue(inv, now) {
			r.Overdue++
		}
		s, ok := per[inv.Currency]
		if !ok {
			s = &sums{}
			per[inv.Currency] = s
		}
		s.count++
		s.invoiced = s.invoiced.Add(decimal.NewFromFloat(inv.Total))
		s.received = s.received.Add(decimal.NewFromFloat(Received(inv)))
		s.outstanding = s.outstanding.Add(decimal.NewFromFloat(BalanceDue(inv)))
	}
	for c, s := range per {
		r.Currencies = append(r.Currencies, CurrencySummary{
			Currency:    c,
			Count:       s.count,
			Invoiced:    s.invoiced.InexactFloat64(),
			Received:    s.received.InexactFloat64(),
			Outstanding: s.outstanding.InexactFloat64(),
		})
	}
	sort.Slice(r.Currencies, func(i, j int) bool { return r.Currencies[i].Currency < r.Currencies[j].Currency })
	return r
}
