package settings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/docstore"
)

// Handler serves GET/PUT /api/settings.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a settings handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Get handles GET /api/settings
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	s, err := h.svc.Get(r.Context())
	if err != nil {
		h.writeStoreError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, s)
}

// Put handles PUT /api/settings
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return
	}
	if err := h.svc.Put(r.Context(), s); err != nil {
		if errors.Is(err, ErrInvalid) {
			auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), corrID, false)
			return
		}
		h.writeStoreError(w, corrID, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, s)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, corrID string, err error) {
	if errors.Is(err, docstore.ErrUnauthenticated) {
		auth.WriteError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", corrID, false)
		return
	}
	h.logger.Error("settings store failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
	auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to access settings", corrID, true)
}
