package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/docstore"
	"github.com/codelits/invoice-manager/internal/settings"
)

// HandlerOptions wire printing, archiving and auditing into a Handler.
type HandlerOptions struct {
	Config   Config
	Settings SettingsSource
	Renderer Renderer
	Storage  Storage
	Auditor  *auth.Auditor
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Handler serves /api/invoices.
type Handler struct {
	svc      *Service
	cfg      Config
	settings SettingsSource
	renderer Renderer
	storage  Storage
	auditor  *auth.Auditor
	clock    clock.Clock
	logger   *slog.Logger
}

func NewHandler(svc *Service, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Renderer == nil {
		opts.Renderer = NewRenderer(opts.Config)
	}
	return &Handler{
		svc:      svc,
		cfg:      opts.Config,
		settings: opts.Settings,
		renderer: opts.Renderer,
		storage:  opts.Storage,
		auditor:  opts.Auditor,
		clock:    clock.OrReal(opts.Clock),
		logger:   opts.Logger,
	}
}

// ListInvoicesResponse is the response for listing invoices.
type ListInvoicesResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// DescriptionsResponse lists prior line-item descriptions.
type DescriptionsResponse struct {
	Descriptions []string `json:"descriptions"`
}

// ArchiveResponse is returned after a PDF has been archived.
type ArchiveResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// validationResponse is the 400 body for rejected writes.
type validationResponse struct {
	Code      string                `json:"code"`
	Message   string                `json:"message"`
	CorrID    string                `json:"corrId,omitempty"`
	Retryable bool                  `json:"retryable"`
	Errors    []ValidationErrorItem `json:"errors"`
}

// Routes mounts the invoice endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/draft", h.Draft)
	r.Post("/validate", h.Validate)
	r.Get("/lookup", h.Lookup)
	r.Get("/descriptions", h.Descriptions)
	r.Get("/report", h.Report)
	r.Get("/stream", h.Stream)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Replace)
	r.Patch("/{id}", h.Patch)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/pdf", h.PDF)
	r.Post("/{id}/pdf", h.Archive)
}

// List handles GET /api/invoices
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, ListInvoicesResponse{Invoices: list})
}

// Draft handles GET /api/invoices/draft
func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	auth.WriteJSON(w, http.StatusOK, auth.RequestCorrID(r), h.svc.Draft(r.Context()))
}

// Validate handles POST /api/invoices/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	inv, ok := decodeBody[Invoice](w, r, corrID)
	if !ok {
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, h.svc.Validate(inv))
}

// Create handles POST /api/invoices
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	inv, ok := decodeBody[Invoice](w, r, corrID)
	if !ok {
		return
	}
	created, err := h.svc.Create(r.Context(), inv)
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	h.audit(r, "invoice.created", created)
	auth.WriteJSON(w, http.StatusCreated, corrID, created)
}

// Get handles GET /api/invoices/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	inv, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, inv)
}

// Lookup handles GET /api/invoices/lookup?number= and ?id=
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	q := r.URL.Query()
	identifier, by := q.Get("number"), ByNumber
	if identifier == "" {
		identifier, by = q.Get("id"), ByID
	}
	if identifier == "" {
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "number or id is required", corrID, false)
		return
	}
	inv, err := h.svc.Lookup(r.Context(), identifier, by)
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, inv)
}

// Replace handles PUT /api/invoices/{id}
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	inv, ok := decodeBody[Invoice](w, r, corrID)
	if !ok {
		return
	}
	updated, err := h.svc.Replace(r.Context(), chi.URLParam(r, "id"), inv)
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	h.audit(r, "invoice.updated", updated)
	auth.WriteJSON(w, http.StatusOK, corrID, updated)
}

// Patch handles PATCH /api/invoices/{id}
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	p, ok := decodeBody[Patch](w, r, corrID)
	if !ok {
		return
	}
	updated, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	h.audit(r, "invoice.updated", updated)
	auth.WriteJSON(w, http.StatusOK, corrID, updated)
}

// Delete handles DELETE /api/invoices/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, corrID, err)
		return
	}
	h.audit(r, "invoice.deleted", Invoice{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// Descriptions handles GET /api/invoices/descriptions
func (h *Handler) Descriptions(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	list, err := h.svc.DistinctPriorDescriptions(r.Context())
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, DescriptionsResponse{Descriptions: list})
}

// Report handles GET /api/invoices/report
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, Summarize(list, h.clock.Now()))
}

// Stream handles GET /api/invoices/stream as server-sent events. Each
// event carries the full invoice list; the stream ends with the request
// context, which the router cancels when the session signs out.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	view, err := h.svc.Watch(r.Context())
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(auth.CorrelationHeader, corrID)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("stream flush unsupported", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-view.Done():
			return
		case <-view.Changed():
			if r.Context().Err() != nil {
				return
			}
			data, err := json.Marshal(ListInvoicesResponse{Invoices: view.Invoices()})
			if err != nil {
				h.logger.Error("encode snapshot failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: invoices\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// PDF handles GET /api/invoices/{id}/pdf
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	inv, pdf, err := h.render(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", inv.InvoiceNumber+".pdf"))
	w.Header().Set(auth.CorrelationHeader, corrID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// Archive handles POST /api/invoices/{id}/pdf: the printed invoice is
// stored and a signed link returned.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	logger := auth.CorrelationLogger(h.logger, corrID, actor(r.Context()))
	if h.storage == nil {
		auth.WriteError(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "PDF archive is not configured", corrID, false)
		return
	}
	inv, pdf, err := h.render(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	key := ArchiveKey(inv)
	if err := h.storage.PutObject(r.Context(), key, pdf, "application/pdf"); err != nil {
		logger.Error("store pdf failed", slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to archive PDF", corrID, true)
		return
	}
	meta, err := h.storage.Head(r.Context(), key)
	if err != nil {
		logger.Warn("head pdf failed", slog.String("error", err.Error()))
		meta = ObjectMeta{Key: key, Size: int64(len(pdf))}
	}
	u, err := h.storage.GetSignedURL(r.Context(), key, h.cfg.SignURLTTL)
	if err != nil {
		logger.Error("sign pdf url failed", slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to sign PDF link", corrID, true)
		return
	}
	h.audit(r, "invoice.archived", inv)
	auth.WriteJSON(w, http.StatusCreated, corrID, ArchiveResponse{
		Key:       key,
		URL:       u,
		Size:      meta.Size,
		ExpiresAt: h.clock.Now().Add(h.cfg.SignURLTTL).UTC(),
	})
}

// Sheet handles GET /invoices/{id}/view: the printable HTML sheet.
func (h *Handler) Sheet(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	doc, err := h.document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	page, err := RenderHTML(doc, location(h.cfg.PDFTimeZone))
	if err != nil {
		h.writeError(w, corrID, fmt.Errorf("%w: %v", errRender, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(auth.CorrelationHeader, corrID)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}

func (h *Handler) document(ctx context.Context, id string) (Document, error) {
	inv, err := h.svc.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	company := settings.Default().Company
	if h.settings != nil {
		st, err := h.settings.Get(ctx)
		if err != nil {
			return Document{}, err
		}
		company = st.Company
	}
	return Document{Invoice: inv, Company: company}, nil
}

func (h *Handler) render(ctx context.Context, id string) (Invoice, []byte, error) {
	doc, err := h.document(ctx, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	pdf, err := h.renderer.Render(ctx, doc)
	if err != nil {
		return Invoice{}, nil, fmt.Errorf("%w: %v", errRender, err)
	}
	return doc.Invoice, pdf, nil
}

var errRender = errors.New("invoice: render failed")

func (h *Handler) audit(r *http.Request, action string, inv Invoice) {
	details := inv.ID
	if inv.InvoiceNumber != "" {
		details = inv.ID + " " + inv.InvoiceNumber
	}
	if err := h.auditor.Record(r.Context(), auth.Event{
		Action:  action,
		Actor:   actor(r.Context()),
		Details: details,
		Request: r,
	}); err != nil {
		h.logger.Warn("audit append failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

func actor(ctx context.Context) string {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return id.Email
	}
	return "system"
}

func (h *Handler) writeError(w http.ResponseWriter, corrID string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		auth.WriteJSON(w, http.StatusBadRequest, corrID, validationResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invoice failed validation",
			CorrID:  corrID,
			Errors:  verr.Items,
		})
	case errors.Is(err, ErrNotFound):
		auth.WriteError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", corrID, false)
	case errors.Is(err, docstore.ErrUnauthenticated):
		auth.WriteError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", corrID, false)
	case errors.Is(err, errRender):
		h.logger.Error("pdf render failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusBadGateway, "RENDER_FAILED", "Failed to print invoice", corrID, true)
	default:
		h.logger.Error("invoice store failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to access invoices", corrID, true)
	}
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request, corrID string) (T, bool) {
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return v, false
	}
	return v, true
}
