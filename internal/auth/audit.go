package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codelits/invoice-manager/internal/clock"
)

// Auditor appends hash-chained entries to an AuditRecorder. A nil
// *Auditor discards everything.
type Auditor struct {
	rec   AuditRecorder
	clock clock.Clock
}

// NewAuditor wraps rec. Returns nil when rec is nil.
func NewAuditor(rec AuditRecorder, clk clock.Clock) *Auditor {
	if rec == nil {
		return nil
	}
	return &Auditor{rec: rec, clock: clock.OrReal(clk)}
}

// Event describes an audited action.
type Event struct {
	Action  string
	Actor   string
	CorrID  string
	Details string
	Request *http.Request
}

// Record links ev onto the chain.
func (a *Auditor) Record(ctx context.Context, ev Event) error {
	if a == nil {
		return nil
	}
	entry := AuditLogEntry{
		ID:        generateID(),
		CorrID:    ev.CorrID,
		Actor:     ev.Actor,
		Action:    ev.Action,
		Details:   ev.Details,
		Timestamp: a.clock.Now().UTC(),
	}
	if ev.Request != nil {
		entry.IPAddress = ClientIP(ev.Request)
		entry.UserAgent = ev.Request.UserAgent()
		if entry.CorrID == "" {
			entry.CorrID = CorrIDFromContext(ev.Request.Context())
		}
	}
	if prev, err := a.rec.Last(ctx); err == nil {
		entry.PrevHash = prev.Hash
	}
	entry.Hash = ComputeAuditHash(entry.PrevHash, auditPayload(entry))
	return a.rec.Record(ctx, entry)
}

// Entries returns the recorded chain.
func (a *Auditor) Entries(ctx context.Context) ([]AuditLogEntry, error) {
	if a == nil {
		return nil, nil
	}
	return a.rec.Entries(ctx)
}

// VerifyChain recomputes every hash and returns the index of the first
// broken link, or -1 when the chain is intact.
func VerifyChain(entries []AuditLogEntry) int {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev || ComputeAuditHash(e.PrevHash, auditPayload(e)) != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}

func auditPayload(e AuditLogEntry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", e.ID, e.Actor, e.Action, e.Timestamp.Format(time.RFC3339Nano), e.PrevHash)
}

// CorrelationLogger returns logger annotated with the request's
// correlation id and acting email.
func CorrelationLogger(logger *slog.Logger, corrID, email string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("corrId", corrID, "actor", email)
}
