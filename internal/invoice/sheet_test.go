package invoice

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/settings"
)

func sampleDocument() Document {
	inv := sampleInvoice()
	Apply(&inv)
	return Document{Invoice: inv, Company: settings.Default().Company}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleDocument(), time.UTC)
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	for _, want := range []string{
		"Codelits Studio Pvt. Ltd.",
		"PAN: 123456789",
		"# INV-1001",
		"March 5, 2025",
		"April 4, 2025",
		"Invoiced to",
		"Acme Corp",
		"VAT (13%)",
		"TDS (1.5%)",
		"-$3.00",
		"$223.00",
		">UNPAID<",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	for _, absent := range []string{"Balance Due", "Transactions"} {
		if strings.Contains(html, absent) {
			t.Errorf("html should not contain %q", absent)
		}
	}
}

func TestRenderHTML_PartialAndTransactions(t *testing.T) {
	doc := sampleDocument()
	received := 100.0
	doc.Invoice.Status = StatusPartial
	doc.Invoice.AmountReceived = &received
	doc.Invoice.VATPercent = 0
	doc.Invoice.Currency = NPR
	doc.Invoice.Transactions = []Transaction{{
		Date: doc.Invoice.IssueDate, Gateway: "eSewa", TransactionID: "ES-77", Amount: 100,
	}}
	doc.Invoice.ShowTransactions = true
	Apply(&doc.Invoice)

	html, err := RenderHTML(doc, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Amount Received", "NPR 100.00", "Balance Due", "NPR 97.00", "eSewa", "ES-77", ">PARTIAL<"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "VAT (") {
		t.Error("zero VAT row should be hidden")
	}

	doc.Invoice.ShowTransactions = false
	html, _ = RenderHTML(doc, time.UTC)
	if strings.Contains(html, "ES-77") {
		t.Error("transactions shown although disabled")
	}
}

func TestRenderHTML_EscapesInput(t *testing.T) {
	doc := sampleDocument()
	doc.Invoice.Client.Name = "<script>alert(1)</script>"
	html, _ := RenderHTML(doc, time.UTC)
	if strings.Contains(html, "<script>alert(1)") {
		t.Fatal("client name was not escaped")
	}
}

func TestFPDFRenderer(t *testing.T) {
	doc := sampleDocument()
	doc.Invoice.Currency = INR
	out, err := NewFPDFRenderer(Config{PDFTimeZone: "Asia/Kathmandu"}).Render(context.Background(), doc)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFPDFRenderer(Config{}).Render(ctx, doc); err == nil {
		t.Error("cancelled render should fail")
	}
}

func TestChromiumRenderer(t *testing.T) {
	path := os.Getenv("PDF_CHROMIUM_PATH")
	if path == "" {
		t.Skip("PDF_CHROMIUM_PATH not set")
	}
	out, err := NewChromiumRenderer(Config{PDFChromiumPath: path, PDFTimeout: 30 * time.Second}).
		Render(context.Background(), sampleDocument())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
}

func TestNewRenderer(t *testing.T) {
	if _, ok := NewRenderer(Config{PDFEngine: EngineChromium}).(ChromiumRenderer); !ok {
		t.Error("chromium engine not selected")
	}
	if _, ok := NewRenderer(Config{}).(FPDFRenderer); !ok {
		t.Error("fpdf should be the default engine")
	}
}

func TestLatinMoney(t *testing.T) {
	if got := latinMoney(-3, INR); got != "-Rs. 3.00" {
		t.Errorf("latinMoney() = %q", got)
	}
}

func TestMemoryStorage(t *testing.T) {
	clk := clock.NewFake(testNow)
	s := NewMemoryStorage(clk)
	ctx := context.Background()
	if _, err := s.Head(ctx, "missing"); err != ErrObjectNotFound {
		t.Errorf("Head(missing) = %v", err)
	}
	if _, err := s.GetSignedURL(ctx, "missing", time.Minute); err != ErrObjectNotFound {
		t.Errorf("GetSignedURL(missing) = %v", err)
	}

	inv := Invoice{ID: "abc", InvoiceNumber: "INV 1/2"}
	key := ArchiveKey(inv)
	if key != "invoices/abc/INV%201%2F2.pdf" {
		t.Errorf("ArchiveKey() = %q", key)
	}
	if err := s.PutObject(ctx, key, []byte("%PDF-1.3"), "application/pdf"); err != nil {
		t.Fatal(err)
	}
	meta, err := s.Head(ctx, key)
	if err != nil || meta.Size != 8 || !meta.UpdatedAt.Equal(testNow) {
		t.Errorf("Head() = %+v, %v", meta, err)
	}
	u, err := s.GetSignedURL(ctx, key, 10*time.Minute)
	if err != nil || !strings.Contains(u, "exp=2025-04-01T09%3A10%3A00Z") {
		t.Errorf("GetSignedURL() = %q, %v", u, err)
	}
}
