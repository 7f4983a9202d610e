package invoice

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/jung-kurt/gofpdf"
)

// Renderer prints a document to PDF.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// NewRenderer picks the renderer named by cfg.PDFEngine.
func NewRenderer(cfg Config) Renderer {
	if cfg.PDFEngine == EngineChromium {
		return NewChromiumRenderer(cfg)
	}
	return NewFPDFRenderer(cfg)
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ChromiumRenderer prints the HTML sheet through headless Chromium.
type ChromiumRenderer struct {
	cfg Config
}

func NewChromiumRenderer(cfg Config) ChromiumRenderer {
	return ChromiumRenderer{cfg: cfg}
}

// Render fails when Chromium cannot be started; the caller decides
// whether to fall back or report the error.
func (r ChromiumRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	html, err := RenderHTML(doc, location(r.cfg.PDFTimeZone))
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if r.cfg.PDFChromiumPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.cfg.PDFChromiumPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	timeout := r.cfg.PDFTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, timeout)
	defer cancelTimeout()

	var out []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("data:text/html,"+url.PathEscape(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			out = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromium print: %w", err)
	}
	return out, nil
}

// FPDFRenderer draws the sheet directly with gofpdf. It needs no browser
// and omits the company logo.
type FPDFRenderer struct {
	cfg Config
}

func NewFPDFRenderer(cfg Config) FPDFRenderer {
	return FPDFRenderer{cfg: cfg}
}

// watermark colours per status, RGB.
var watermarkColor = map[Status][3]int{
	StatusPaid:    {34, 197, 94},
	StatusPartial: {234, 179, 8},
	StatusUnpaid:  {239, 68, 68},
}

func (r FPDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := buildSheet(doc, location(r.cfg.PDFTimeZone), latinMoney)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Invoice "+sh.Number, true)
	pdf.SetCreator(sh.Company.Name, true)
	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	if rgb, ok := watermarkColor[sh.Status]; ok {
		pdf.SetAlpha(0.2, "Normal")
		pdf.SetTextColor(rgb[0], rgb[1], rgb[2])
		pdf.SetFont("Helvetica", "B", 96)
		pdf.TransformBegin()
		pdf.TransformRotate(45, pageW/2, pageH/2)
		tw := pdf.GetStringWidth(sh.Watermark)
		pdf.Text(pageW/2-tw/2, pageH/2, sh.Watermark)
		pdf.TransformEnd()
		pdf.SetAlpha(1, "Normal")
		pdf.SetTextColor(15, 23, 42)
	}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(width/2, 8, tr(sh.Company.Name), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(width/2, 8, "INVOICE", "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(width/2, 5, tr(sh.Company.Address), "", 0, "L", false, 0, "")
	pdf.CellFormat(width/2, 5, tr("# "+sh.Number), "", 1, "R", false, 0, "")
	pdf.CellFormat(width, 5, tr("PAN: "+sh.Company.PAN), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(width/2, 5, "Invoiced to", "", 0, "L", false, 0, "")
	pdf.CellFormat(width/2, 5, tr("Issue date: "+sh.IssueDate), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(width/2, 5, tr(sh.ClientName), "", 0, "L", false, 0, "")
	pdf.CellFormat(width/2, 5, tr("Due date: "+sh.DueDate), "", 1, "R", false, 0, "")
	pdf.MultiCell(width/2, 5, tr(sh.ClientAddress), "", "L", false)
	pdf.Ln(6)

	cols := []float64{width * 0.52, width * 0.12, width * 0.18, width * 0.18}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(248, 250, 252)
	for i, h := range []string{"Description", "Quantity", "Rate", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(cols[i], 7, h, "B", 0, align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range sh.Lines {
		pdf.CellFormat(cols[0], 7, tr(line.Description), "B", 0, "L", false, 0, "")
		pdf.CellFormat(cols[1], 7, line.Quantity, "B", 0, "R", false, 0, "")
		pdf.CellFormat(cols[2], 7, tr(line.Rate), "B", 0, "R", false, 0, "")
		pdf.CellFormat(cols[3], 7, tr(line.Amount), "B", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	labelW := cols[0] + cols[1] + cols[2]
	total := func(label, amount string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(labelW, 6, tr(label), "", 0, "R", false, 0, "")
		pdf.CellFormat(cols[3], 6, tr(amount), "", 1, "R", false, 0, "")
	}
	total("Subtotal", sh.Subtotal, false)
	if sh.VAT != nil {
		total(sh.VAT.Label, sh.VAT.Amount, false)
	}
	if sh.TDS != nil {
		total(sh.TDS.Label, sh.TDS.Amount, false)
	}
	total("Total", sh.Total, true)
	if sh.Partial {
		total("Amount Received", sh.Received, false)
		total("Balance Due", sh.BalanceDue, true)
	}

	if len(sh.Transactions) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(width, 7, "Transactions", "", 1, "L", false, 0, "")
		txCols := []float64{width * 0.25, width * 0.25, width * 0.3, width * 0.2}
		pdf.SetFont("Helvetica", "B", 10)
		for i, h := range []string{"Date", "Gateway", "Transaction ID", "Amount"} {
			align := "L"
			if i == 3 {
				align = "R"
			}
			pdf.CellFormat(txCols[i], 7, h, "B", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
		for _, tx := range sh.Transactions {
			pdf.CellFormat(txCols[0], 7, tr(tx.Date), "B", 0, "L", false, 0, "")
			pdf.CellFormat(txCols[1], 7, tr(tx.Gateway), "B", 0, "L", false, 0, "")
			pdf.CellFormat(txCols[2], 7, tr(tx.TransactionID), "B", 0, "L", false, 0, "")
			pdf.CellFormat(txCols[3], 7, tr(tx.Amount), "B", 1, "R", false, 0, "")
		}
	}

	if sh.Company.FooterNote != "" {
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(width, 5, tr(sh.Company.FooterNote), "T", "C", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("fpdf output: %w", err)
	}
	return buf.Bytes(), nil
}

// latinMoney is FormatMoney for the core PDF fonts, which have no rupee
// sign.
func latinMoney(amount float64, c Currency) string {
	return strings.Replace(FormatMoney(amount, c), "₹", "Rs. ", 1)
}
