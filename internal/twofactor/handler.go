package twofactor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/session"
)

// Handler exposes the flow under /api/2fa. Routes are mounted behind
// session.RequireIdentity.
type Handler struct {
	flow *Flow
}

// NewHandler creates a handler for flow.
func NewHandler(flow *Flow) *Handler {
	return &Handler{flow: flow}
}

// StatusResponse reports the challenge state and the last send outcome.
type StatusResponse struct {
	Status            Status `json:"status"`
	Sent              bool   `json:"sent"`
	SentTo            string `json:"sentTo,omitempty"`
	Throttled         bool   `json:"throttled"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Attempts          int    `json:"attempts,omitempty"`
}

// VerifyRequest is the request body for POST /api/2fa/verify.
type VerifyRequest struct {
	Code string `json:"code"`
}

// Get handles GET /api/2fa
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	auth.WriteJSON(w, http.StatusOK, auth.RequestCorrID(r), h.response(s, Result{}))
}

// Enter handles POST /api/2fa/enter
func (h *Handler) Enter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	res, err := h.flow.Enter(r.Context(), s)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, auth.RequestCorrID(r), h.response(s, res))
}

// Resend handles POST /api/2fa/resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	res, err := h.flow.RequestCode(r.Context(), s)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, auth.RequestCorrID(r), h.response(s, res))
}

// Verify handles POST /api/2fa/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	corrID := auth.RequestCorrID(r)
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID, false)
		return
	}
	if err := h.flow.Verify(r.Context(), s, req.Code); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, corrID, session.ToResponse(s.State()))
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", auth.RequestCorrID(r), false)
	}
	return s, ok
}

func (h *Handler) response(s *session.Store, res Result) StatusResponse {
	return StatusResponse{
		Status:            h.flow.Status(s),
		Sent:              res.Sent,
		SentTo:            res.SentTo,
		Throttled:         res.Throttled,
		RetryAfterSeconds: res.RemainingSeconds,
		Attempts:          h.flow.Attempts(s),
	}
}

func (h *Handler) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	corrID := auth.RequestCorrID(r)
	switch {
	case errors.Is(err, ErrInvalidCode):
		auth.WriteError(w, http.StatusBadRequest, "INVALID_CODE", "The code you entered is incorrect", corrID, true)
	case errors.Is(err, ErrNoChallenge):
		auth.WriteError(w, http.StatusConflict, "NO_CHALLENGE", "Request a verification code first", corrID, true)
	case errors.Is(err, ErrAlreadyVerified):
		auth.WriteError(w, http.StatusConflict, "ALREADY_VERIFIED", "Session is already verified", corrID, false)
	case errors.Is(err, ErrSendFailed):
		auth.WriteError(w, http.StatusBadGateway, "SEND_FAILED", "Could not send the verification email; please sign in again", corrID, true)
	case errors.Is(err, session.ErrNoIdentity):
		auth.WriteError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", corrID, false)
	default:
		auth.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Verification failed", corrID, true)
	}
}
