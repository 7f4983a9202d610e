package invoice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/docstore"
	"github.com/codelits/invoice-manager/internal/settings"
)

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, Document) ([]byte, error) {
	return nil, errors.New("chromium not found")
}

type handlerFixture struct {
	svc     *Service
	router  chi.Router
	storage *MemoryStorage
	audit   *auth.InMemoryAuditRecorder
}

func newHandlerFixture(t *testing.T, opts HandlerOptions) *handlerFixture {
	t.Helper()
	clk := clock.NewFake(testNow)
	store := docstore.NewMemoryStore(clk)
	st := settings.NewService(store, settings.Default())
	svc := NewService(store, Options{Config: LoadConfig(), Clock: clk, Settings: st})
	rec := auth.NewInMemoryAuditRecorder()
	opts.Config.SignURLTTL = 10 * time.Minute
	opts.Settings = st
	opts.Auditor = auth.NewAuditor(rec, clk)
	opts.Clock = clk
	f := &handlerFixture{svc: svc, audit: rec}
	if opts.Storage == nil {
		f.storage = NewMemoryStorage(clk)
		opts.Storage = f.storage
	}
	h := NewHandler(svc, opts)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Test-Anonymous") == "" {
				id := &auth.Identity{UID: "u1", Email: "officer@example.com"}
				req = req.WithContext(auth.ContextWithIdentity(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/invoices", h.Routes)
	r.Get("/invoices/{id}/view", h.Sheet)
	f.router = r
	return f
}

func (f *handlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(auth.CorrelationHeader, "corr-test")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CRUD(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{})

	rec := f.do(http.MethodPost, "/api/invoices", sampleInvoice())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(auth.CorrelationHeader) != "corr-test" {
		t.Errorf("correlation header not echoed")
	}
	var created Invoice
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Total != 223 {
		t.Errorf("created total = %v", created.Total)
	}

	rec = f.do(http.MethodPatch, "/api/invoices/"+created.ID, map[string]any{"status": "partial", "amountReceived": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch = %d: %s", rec.Code, rec.Body)
	}
	var patched Invoice
	_ = json.Unmarshal(rec.Body.Bytes(), &patched)
	if BalanceDue(patched) != 123 {
		t.Errorf("balance due = %v", BalanceDue(patched))
	}

	rec = f.do(http.MethodGet, "/api/invoices/lookup?number=inv-1001", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("lookup = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/invoices/lookup", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("lookup without identifier = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/invoices/descriptions", nil)
	var desc DescriptionsResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &desc)
	if len(desc.Descriptions) != 2 {
		t.Errorf("descriptions = %+v", desc)
	}

	rec = f.do(http.MethodGet, "/api/invoices/report", nil)
	var report Report
	_ = json.Unmarshal(rec.Body.Bytes(), &report)
	if report.Count != 1 || report.ByStatus[StatusPartial] != 1 {
		t.Errorf("report = %+v", report)
	}

	next := sampleInvoice()
	next.Client.Name = "Bravo"
	if rec := f.do(http.MethodPut, "/api/invoices/"+created.ID, next); rec.Code != http.StatusOK {
		t.Errorf("replace = %d: %s", rec.Code, rec.Body)
	}
	if rec := f.do(http.MethodDelete, "/api/invoices/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/invoices/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}

	want := []string{"invoice.created", "invoice.updated", "invoice.updated", "invoice.deleted"}
	got := f.audit.Actions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("audit actions = %v, want %v", got, want)
	}
}

func TestHandler_ValidationErrors(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{})
	inv := sampleInvoice()
	inv.Client.Name = ""
	inv.LineItems[0].Quantity = 0

	rec := f.do(http.MethodPost, "/api/invoices", inv)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("create = %d", rec.Code)
	}
	var body validationResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != "VALIDATION_ERROR" || len(body.Errors) != 2 || body.CorrID != "corr-test" {
		t.Errorf("body = %+v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/api/invoices/validate", inv)
	var result ValidationResult
	_ = json.Unmarshal(rec.Body.Bytes(), &result)
	if rec.Code != http.StatusOK || result.Valid || result.Totals.Subtotal != 100 {
		t.Errorf("validate = %d %+v", rec.Code, result)
	}
}

func TestHandler_Anonymous(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{})
	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("X-Test-Anonymous", "1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list = %d", rec.Code)
	}
}

func TestHandler_Draft(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{})
	rec := f.do(http.MethodGet, "/api/invoices/draft", nil)
	var d Invoice
	_ = json.Unmarshal(rec.Body.Bytes(), &d)
	if !strings.HasPrefix(d.InvoiceNumber, "INV-") || d.VATPercent != 13 {
		t.Errorf("draft = %+v", d)
	}
}

func TestHandler_PDFAndArchive(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{Renderer: NewFPDFRenderer(Config{})})
	created, err := f.svc.Create(auth.WithSystem(context.Background()), sampleInvoice())
	if err != nil {
		t.Fatal(err)
	}

	rec := f.do(http.MethodGet, "/api/invoices/"+created.ID+"/pdf", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}

	rec = f.do(http.MethodPost, "/api/invoices/"+created.ID+"/pdf", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("archive = %d: %s", rec.Code, rec.Body)
	}
	var out ArchiveResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Key != ArchiveKey(created) || !strings.HasPrefix(out.URL, "https://storage.local/") || out.Size == 0 {
		t.Errorf("archive = %+v", out)
	}
	if !out.ExpiresAt.Equal(testNow.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", out.ExpiresAt)
	}
	if _, ok := f.storage.Object(out.Key); !ok {
		t.Error("pdf not stored")
	}

	if rec := f.do(http.MethodGet, "/api/invoices/missing/pdf", nil); rec.Code != http.StatusNotFound {
		t.Errorf("pdf of missing invoice = %d", rec.Code)
	}
}

func TestHandler_Sheet(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{})
	created, err := f.svc.Create(auth.WithSystem(context.Background()), sampleInvoice())
	if err != nil {
		t.Fatal(err)
	}
	rec := f.do(http.MethodGet, "/invoices/"+created.ID+"/view", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("sheet = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "# INV-1001") {
		t.Error("sheet does not show the invoice number")
	}
	if rec := f.do(http.MethodGet, "/invoices/missing/view", nil); rec.Code != http.StatusNotFound {
		t.Errorf("sheet of missing invoice = %d", rec.Code)
	}
}

func TestHandler_RenderFailure(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{Renderer: failingRenderer{}})
	created, _ := f.svc.Create(auth.WithSystem(context.Background()), sampleInvoice())
	rec := f.do(http.MethodGet, "/api/invoices/"+created.ID+"/pdf", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("pdf = %d", rec.Code)
	}
	var body auth.AuthError
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != "RENDER_FAILED" || !body.Retryable {
		t.Errorf("body = %+v", body)
	}
}

func TestHandler_Stream(t *testing.T) {
	f := newHandlerFixture(t, HandlerOptions{})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/invoices/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}

	events := make(chan ListInvoicesResponse, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev ListInvoicesResponse
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				events <- ev
			}
		}
		close(events)
	}()

	next := func() ListInvoicesResponse {
		t.Helper()
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
		}
		return ListInvoicesResponse{}
	}

	if ev := next(); len(ev.Invoices) != 0 {
		t.Fatalf("first event = %+v", ev)
	}
	if _, err := f.svc.Create(auth.WithSystem(context.Background()), sampleInvoice()); err != nil {
		t.Fatal(err)
	}
	if ev := next(); len(ev.Invoices) != 1 || ev.Invoices[0].Total != 223 {
		t.Fatalf("second event = %+v", ev)
	}
}
