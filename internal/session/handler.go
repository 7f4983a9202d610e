package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/codelits/invoice-manager/internal/auth"
)

// Handler serves the session endpoints.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a session handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// LoginRequest is the request body for POST /api/session/login.
type LoginRequest struct {
	Email    openapi_types.Email `json:"email"`
	Password string              `json:"password"`
}

// StateResponse is the public view of a session.
type StateResponse struct {
	Authenticated     bool      `json:"authenticated"`
	Email             string    `json:"email,omitempty"`
	Role              auth.Role `json:"role,omitempty"`
	TwoFactorVerified bool      `json:"twoFactorVerified"`
}

// ToResponse converts a state snapshot for the wire.
func ToResponse(s State) StateResponse {
	return StateResponse{
		Authenticated:     s.Authenticated(),
		Email:             s.Email,
		Role:              s.Role,
		TwoFactorVerified: s.TwoFactorVerified,
	}
}

// Login handles POST /api/session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	store, ok := FromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session unavailable", corrID, true)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, openapi_types.ErrValidationEmail) {
			auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is not valid", corrID, false)
			return
		}
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return
	}
	if req.Email == "" || req.Password == "" {
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", corrID, false)
		return
	}

	if _, err := store.Login(r.Context(), string(req.Email), req.Password); err != nil {
		h.logger.Info("login rejected", slog.String("correlationId", corrID))
		auth.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", corrID, false)
		return
	}

	auth.WriteJSON(w, http.StatusOK, corrID, ToResponse(store.State()))
}

// Logout handles POST /api/session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	store, ok := FromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session unavailable", corrID, true)
		return
	}
	if err := store.Logout(r.Context()); err != nil {
		// The local session is already gone; only upstream revocation failed.
		h.logger.Warn("upstream sign-out failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
	}
	if isFormPost(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/session
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var st State
	if store, ok := FromContext(r.Context()); ok {
		st = store.State()
	}
	auth.WriteJSON(w, http.StatusOK, corrID, ToResponse(st))
}

// isFormPost reports whether r was submitted by an HTML form rather than
// a script.
func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}
