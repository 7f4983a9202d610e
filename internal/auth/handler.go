package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the authentication audit trail. Access control is
// applied by the router.
type Handler struct {
	auditor *Auditor
	logger  *slog.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(auditor *Auditor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auditor: auditor, logger: logger}
}

// AuditTrailResponse is the response for listing the audit chain.
type AuditTrailResponse struct {
	Entries []AuditLogEntry `json:"entries"`
	Intact  bool            `json:"intact"`
	// BrokenAt is the index of the first entry whose hash does not verify.
	BrokenAt *int `json:"brokenAt,omitempty"`
}

// ListAudit handles GET /api/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	corrID := RequestCorrID(r)

	entries, err := h.auditor.Entries(r.Context())
	if err != nil {
		h.logger.Error("audit list failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
		WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read audit log", corrID, true)
		return
	}
	if entries == nil {
		entries = []AuditLogEntry{}
	}

	resp := AuditTrailResponse{Entries: entries, Intact: true}
	if i := VerifyChain(entries); i >= 0 {
		resp.Intact = false
		resp.BrokenAt = &i
		h.logger.Warn("audit chain broken", slog.String("correlationId", corrID), slog.Int("index", i))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
