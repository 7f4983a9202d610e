package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/invoice"
)

// InvoiceSource supplies context for the suggestion and support flows.
type InvoiceSource interface {
	DistinctPriorDescriptions(ctx context.Context) ([]string, error)
	Lookup(ctx context.Context, identifier string, by invoice.LookupKey) (invoice.Invoice, error)
}

// Handler serves /api/assist.
type Handler struct {
	runner   Runner
	invoices InvoiceSource
	loc      *time.Location
	logger   *slog.Logger
}

// NewHandler creates an assist handler. invoices may be nil.
func NewHandler(runner Runner, invoices InvoiceSource, logger *slog.Logger) *Handler {
	if runner == nil {
		runner = UnavailableRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, invoices: invoices, loc: time.UTC, logger: logger}
}

type SuggestRequest struct {
	CurrentInput    string   `json:"currentInput"`
	PreviousEntries []string `json:"previousEntries,omitempty"`
}

type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

type DescriptionRequest struct {
	Description string `json:"description"`
}

type CategorizeResponse struct {
	Category string `json:"category"`
}

type EnhanceResponse struct {
	EnhancedDescription string `json:"enhancedDescription"`
}

// SupportRequest may name an invoice by number; its summary is passed to
// the model along with the question.
type SupportRequest struct {
	Query         string `json:"query"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
}

type SupportResponse struct {
	Response string `json:"response"`
}

// Routes mounts the assist endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/suggest", h.Suggest)
	r.Post("/categorize", h.Categorize)
	r.Post("/enhance", h.Enhance)
	r.Post("/support", h.Support)
}

// Suggest handles POST /api/assist/suggest. Failures never surface: the
// caller gets an empty list.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var req SuggestRequest
	if !decode(w, r, corrID, &req) {
		return
	}
	resp := SuggestResponse{Suggestions: []string{}}
	if strings.TrimSpace(req.CurrentInput) == "" {
		auth.WriteJSON(w, http.StatusOK, corrID, resp)
		return
	}

	log := auth.CorrelationLogger(h.logger, corrID, actor(r.Context()))
	prev := req.PreviousEntries
	if len(prev) == 0 && h.invoices != nil {
		list, err := h.invoices.DistinctPriorDescriptions(r.Context())
		if err != nil {
			log.Warn("prior descriptions unavailable", slog.String("error", err.Error()))
		}
		prev = list
	}

	list, err := Suggest(r.Context(), h.runner, SuggestInput{PreviousEntries: prev, CurrentInput: req.CurrentInput})
	if err != nil {
		log.Warn("suggestion flow failed", slog.String("error", err.Error()))
	} else {
		resp.Suggestions = list
	}
	auth.WriteJSON(w, http.StatusOK, corrID, resp)
}

// Categorize handles POST /api/assist/categorize
func (h *Handler) Categorize(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var req DescriptionRequest
	if !decode(w, r, corrID, &req) || !requireField(w, corrID, "description", req.Description) {
		return
	}
	category, err := Categorize(r.Context(), h.runner, req.Description)
	if err != nil {
		h.unavailable(w, r, corrID, CategorizeLineItem, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, CategorizeResponse{Category: category})
}

// Enhance handles POST /api/assist/enhance
func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var req DescriptionRequest
	if !decode(w, r, corrID, &req) || !requireField(w, corrID, "description", req.Description) {
		return
	}
	text, err := Enhance(r.Context(), h.runner, req.Description)
	if err != nil {
		h.unavailable(w, r, corrID, EnhanceLineItemDescription, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, EnhanceResponse{EnhancedDescription: text})
}

// Support handles POST /api/assist/support
func (h *Handler) Support(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var req SupportRequest
	if !decode(w, r, corrID, &req) || !requireField(w, corrID, "query", req.Query) {
		return
	}
	in := SupportInput{Query: req.Query}
	if req.InvoiceNumber != "" && h.invoices != nil {
		inv, err := h.invoices.Lookup(r.Context(), req.InvoiceNumber, invoice.ByNumber)
		switch {
		case err == nil:
			in.Invoice = Summary(inv, h.loc)
		case errors.Is(err, invoice.ErrNotFound):
			auth.WriteError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", corrID, false)
			return
		default:
			auth.CorrelationLogger(h.logger, corrID, actor(r.Context())).
				Warn("invoice lookup failed", slog.String("error", err.Error()))
		}
	}
	answer, err := Support(r.Context(), h.runner, in)
	if err != nil {
		h.unavailable(w, r, corrID, SupportAssistant, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, SupportResponse{Response: answer})
}

// Summary describes an invoice in a few plain lines for the support flow.
func Summary(inv invoice.Invoice, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s for %s\n", inv.InvoiceNumber, inv.Client.Name)
	fmt.Fprintf(&b, "Issued %s, due %s\n", invoice.FormatDate(inv.IssueDate, loc), invoice.FormatDate(inv.DueDate, loc))
	fmt.Fprintf(&b, "Status: %s\n", inv.Status)
	fmt.Fprintf(&b, "Total: %s\n", invoice.FormatMoney(inv.Total, inv.Currency))
	fmt.Fprintf(&b, "Balance due: %s\n", invoice.FormatMoney(invoice.BalanceDue(inv), inv.Currency))
	fmt.Fprintf(&b, "Line items: %d", len(inv.LineItems))
	return b.String()
}

func (h *Handler) unavailable(w http.ResponseWriter, r *http.Request, corrID string, flow Flow, err error) {
	auth.CorrelationLogger(h.logger, corrID, actor(r.Context())).
		Warn("assist flow failed", slog.String("flow", flow.Name), slog.String("error", err.Error()))
	auth.WriteError(w, http.StatusBadGateway, "AI_UNAVAILABLE", "The assistant is unavailable right now", corrID, true)
}

func decode(w http.ResponseWriter, r *http.Request, corrID string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return false
	}
	return true
}

func requireField(w http.ResponseWriter, corrID, name, value string) bool {
	if strings.TrimSpace(value) == "" {
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", name+" is required", corrID, false)
		return false
	}
	return true
}

func actor(ctx context.Context) string {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return id.Email
	}
	return ""
}
