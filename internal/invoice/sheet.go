package invoice

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/codelits/invoice-manager/internal/settings"
)

// Document is what gets printed: an invoice and the issuing company.
type Document struct {
	Invoice Invoice
	Company settings.Company
}

// sheet is a Document with every value already formatted for printing.
// Both renderers draw from it so HTML and PDF output agree.
type sheet struct {
	Company       settings.Company
	Number        string
	IssueDate     string
	DueDate       string
	ClientName    string
	ClientAddress string
	Lines         []sheetLine
	Subtotal      string
	VAT           *sheetTax
	TDS           *sheetTax
	Total         string
	Partial       bool
	Received      string
	BalanceDue    string
	Transactions  []sheetTransaction
	Watermark     string
	Status        Status
}

type sheetLine struct {
	Description string
	Quantity    string
	Rate        string
	Amount      string
}

type sheetTax struct {
	Label  string
	Amount string
}

type sheetTransaction struct {
	Date          string
	Gateway       string
	TransactionID string
	Amount        string
}

func buildSheet(doc Document, loc *time.Location, money func(float64, Currency) string) sheet {
	inv := doc.Invoice
	c := inv.Currency
	sh := sheet{
		Company:       doc.Company,
		Number:        inv.InvoiceNumber,
		IssueDate:     FormatDate(inv.IssueDate, loc),
		DueDate:       FormatDate(inv.DueDate, loc),
		ClientName:    inv.Client.Name,
		ClientAddress: inv.Client.Address,
		Subtotal:      money(inv.Subtotal, c),
		Total:         money(inv.Total, c),
		Watermark:     strings.ToUpper(string(inv.Status)),
		Status:        inv.Status,
	}
	for _, item := range inv.LineItems {
		sh.Lines = append(sh.Lines, sheetLine{
			Description: item.Description,
			Quantity:    FormatQuantity(item.Quantity),
			Rate:        money(item.Rate, c),
			Amount:      money(LineAmount(item).InexactFloat64(), c),
		})
	}
	if inv.VATAmount > 0 {
		sh.VAT = &sheetTax{Label: fmt.Sprintf("VAT (%g%%)", inv.VATPercent), Amount: money(inv.VATAmount, c)}
	}
	if inv.TDSAmount > 0 {
		sh.TDS = &sheetTax{Label: fmt.Sprintf("TDS (%g%%)", inv.TDSPercent), Amount: "-" + money(inv.TDSAmount, c)}
	}
	if inv.Status == StatusPartial {
		sh.Partial = true
		sh.Received = money(Received(inv), c)
		sh.BalanceDue = money(BalanceDue(inv), c)
	}
	if inv.ShowTransactions {
		for _, tx := range inv.Transactions {
			sh.Transactions = append(sh.Transactions, sheetTransaction{
				Date:          FormatDate(tx.Date, loc),
				Gateway:       tx.Gateway,
				TransactionID: tx.TransactionID,
				Amount:        money(tx.Amount, c),
			})
		}
	}
	return sh
}

var sheetTemplate = template.Must(template.New("invoice").Parse(sheetHTML))

// RenderHTML renders doc as a standalone HTML page. Dates are shown in loc.
func RenderHTML(doc Document, loc *time.Location) (string, error) {
	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, buildSheet(doc, loc, FormatMoney)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const sheetHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Number}}</title>
  <style>
    body { font-family: 'IBM Plex Mono', Menlo, monospace; margin: 32px; color: #0f172a; }
    .sheet { position: relative; overflow: hidden; }
    .watermark { position: absolute; inset: 0; display: flex; align-items: center; justify-content: center; z-index: -1; }
    .watermark p { font-size: 128px; font-weight: 700; transform: rotate(-45deg); margin: 0; }
    .watermark.paid p { color: rgba(34, 197, 94, 0.2); }
    .watermark.partial p { color: rgba(234, 179, 8, 0.2); }
    .watermark.unpaid p { color: rgba(239, 68, 68, 0.2); }
    header { display: flex; justify-content: space-between; align-items: flex-start; border-bottom: 1px solid #e2e8f0; padding-bottom: 24px; margin-bottom: 32px; }
    .muted { color: #64748b; margin: 2px 0; }
    h1 { font-size: 22px; margin: 0 0 4px; }
    h2 { font-size: 28px; text-transform: uppercase; margin: 0; color: #1d4ed8; }
    .meta { display: flex; justify-content: space-between; margin-bottom: 32px; }
    table { width: 100%; border-collapse: collapse; }
    th, td { padding: 8px; border-bottom: 1px solid #e2e8f0; text-align: left; }
    .num { text-align: right; }
    .totals td { border: none; }
    .grand td { font-weight: 700; font-size: 18px; border-top: 1px solid #0f172a; }
    footer { margin-top: 32px; border-top: 1px solid #e2e8f0; padding-top: 16px; text-align: center; }
  </style>
</head>
<body>
<div class="sheet" id="invoice-template">
  <div class="watermark {{.Status}}"><p>{{.Watermark}}</p></div>
  <header>
    <div>
      {{if .Company.LogoURL}}<img src="{{.Company.LogoURL}}" alt="{{.Company.Name}}" width="150" height="50" />{{end}}
      <h1>{{.Company.Name}}</h1>
      <p class="muted">{{.Company.Address}}</p>
      <p class="muted">PAN: {{.Company.PAN}}</p>
    </div>
    <div class="num">
      <h2>Invoice</h2>
      <p class="muted"># {{.Number}}</p>
    </div>
  </header>

  <section class="meta">
    <div>
      <strong>Invoiced to</strong>
      <p>{{.ClientName}}</p>
      <p class="muted">{{.ClientAddress}}</p>
    </div>
    <div class="num">
      <p><strong>Issue date</strong><br /><span class="muted">{{.IssueDate}}</span></p>
      <p><strong>Due date</strong><br /><span class="muted">{{.DueDate}}</span></p>
    </div>
  </section>

  <table>
    <thead>
      <tr><th>Description</th><th class="num">Quantity</th><th class="num">Rate</th><th class="num">Amount</th></tr>
    </thead>
    <tbody>
    {{range .Lines}}
      <tr><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.Rate}}</td><td class="num">{{.Amount}}</td></tr>
    {{end}}
    </tbody>
    <tfoot class="totals">
      <tr><td colspan="3" class="num">Subtotal</td><td class="num">{{.Subtotal}}</td></tr>
      {{with .VAT}}<tr><td colspan="3" class="num">{{.Label}}</td><td class="num">{{.Amount}}</td></tr>{{end}}
      {{with .TDS}}<tr><td colspan="3" class="num">{{.Label}}</td><td class="num">{{.Amount}}</td></tr>{{end}}
      <tr class="grand"><td colspan="3" class="num">Total</td><td class="num">{{.Total}}</td></tr>
      {{if .Partial}}
      <tr><td colspan="3" class="num">Amount Received</td><td class="num">{{.Received}}</td></tr>
      <tr class="grand"><td colspan="3" class="num">Balance Due</td><td class="num">{{.BalanceDue}}</td></tr>
      {{end}}
    </tfoot>
  </table>

  {{if .Transactions}}
  <section>
    <h3>Transactions</h3>
    <table>
      <thead><tr><th>Date</th><th>Gateway</th><th>Transaction ID</th><th class="num">Amount</th></tr></thead>
      <tbody>
      {{range .Transactions}}
        <tr><td>{{.Date}}</td><td>{{.Gateway}}</td><td>{{.TransactionID}}</td><td class="num">{{.Amount}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </section>
  {{end}}

  {{if .Company.FooterNote}}<footer><p class="muted">{{.Company.FooterNote}}</p></footer>{{end}}
</div>
</body>
</html>
`
