package clients

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/docstore"
)

// Handler serves /api/clients.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a clients handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListClientsResponse is the response for listing clients.
type ListClientsResponse struct {
	Clients []Client `json:"clients"`
}

// Routes mounts the client endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List handles GET /api/clients
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, ListClientsResponse{Clients: list})
}

// Get handles GET /api/clients/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, c)
}

// Create handles POST /api/clients
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var c Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return
	}
	created, err := h.svc.Create(r.Context(), c)
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusCreated, corrID, created)
}

// Update handles PUT /api/clients/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var c Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return
	}
	updated, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), c)
	if err != nil {
		h.writeError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, updated)
}

// Delete handles DELETE /api/clients/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, corrID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, corrID string, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), corrID, false)
	case errors.Is(err, ErrNotFound):
		auth.WriteError(w, http.StatusNotFound, "NOT_FOUND", "client not found", corrID, false)
	case errors.Is(err, docstore.ErrUnauthenticated):
		auth.WriteError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", corrID, false)
	default:
		h.logger.Error("client store failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to access clients", corrID, true)
	}
}
