package invitation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/session"
)

// Handler serves the invitation endpoints. Issue and List are mounted
// behind session.RequireRole(auth.RoleAdmin); Complete is public.
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates an invitation handler.
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// InviteRequest is the request body for POST /api/invitations.
type InviteRequest struct {
	Email openapi_types.Email `json:"email"`
}

// CompleteRequest is the request body for POST /api/invitations/complete.
type CompleteRequest struct {
	Email    openapi_types.Email `json:"email"`
	Code     string              `json:"code"`
	Password string              `json:"password"`
}

// InvitationInfo is the public representation of an invitation. The code
// only travels by email.
type InvitationInfo struct {
	Email      string     `json:"email"`
	Status     Status     `json:"status"`
	InvitedAt  time.Time  `json:"invitedAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// ListInvitationsResponse is the response for listing invitations.
type ListInvitationsResponse struct {
	Invitations []InvitationInfo `json:"invitations"`
}

// Issue handles POST /api/invitations
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err, corrID)
		return
	}

	inv, err := h.ledger.Invite(r.Context(), string(req.Email))
	switch {
	case errors.Is(err, ErrInvalidEmail):
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is required", corrID, false)
	case errors.Is(err, ErrSendFailed):
		auth.WriteError(w, http.StatusBadGateway, "SEND_FAILED", "Invitation saved but the email could not be sent; invite again to retry", corrID, true)
	case err != nil:
		h.logger.Error("invite failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create invitation", corrID, true)
	default:
		auth.WriteJSON(w, http.StatusCreated, corrID, toInfo(inv))
	}
}

// List handles GET /api/invitations
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	list, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.Error("list invitations failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list invitations", corrID, true)
		return
	}
	resp := ListInvitationsResponse{Invitations: make([]InvitationInfo, 0, len(list))}
	for _, inv := range list {
		resp.Invitations = append(resp.Invitations, toInfo(inv))
	}
	auth.WriteJSON(w, http.StatusOK, corrID, resp)
}

// Complete handles POST /api/invitations/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	store, ok := session.FromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session unavailable", corrID, true)
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err, corrID)
		return
	}
	if req.Email == "" || req.Code == "" || req.Password == "" {
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email, code and password are required", corrID, false)
		return
	}

	// Registration is public; the ledger is read and written on the
	// server's behalf.
	ctx := auth.WithSystem(r.Context())
	id, err := h.ledger.Complete(ctx, store, string(req.Email), req.Code, req.Password)
	switch {
	case errors.Is(err, ErrInvalidInvitation):
		auth.WriteError(w, http.StatusBadRequest, "INVALID_INVITATION", "Invalid invitation code or email", corrID, false)
	case errors.Is(err, auth.ErrWeakPassword):
		auth.WriteError(w, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters", corrID, false)
	case errors.Is(err, auth.ErrEmailInUse):
		auth.WriteError(w, http.StatusConflict, "EMAIL_IN_USE", "An account with this email already exists", corrID, false)
	case err != nil:
		h.logger.Error("registration failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registration failed", corrID, true)
	default:
		auth.WriteJSON(w, http.StatusCreated, corrID, map[string]string{"email": id.Email})
	}
}

func toInfo(inv Invitation) InvitationInfo {
	return InvitationInfo{
		Email:      inv.Email,
		Status:     inv.Status,
		InvitedAt:  inv.InvitedAt,
		AcceptedAt: inv.AcceptedAt,
	}
}

func writeDecodeError(w http.ResponseWriter, err error, corrID string) {
	if errors.Is(err, openapi_types.ErrValidationEmail) {
		auth.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is not valid", corrID, false)
		return
	}
	auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
}
