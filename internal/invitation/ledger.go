// Package invitation tracks admin-issued invitations that allow a
// specific email address to register as a financial officer.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/mail"
	"github.com/codelits/invoice-manager/internal/otp"
)

var (
	ErrNotFound          = errors.New("invitation: not found")
	ErrSendFailed        = errors.New("invitation: email could not be sent")
	ErrInvalidEmail      = errors.New("invitation: email is required")
	ErrInvalidInvitation = errors.New("invitation: email or code does not match a pending invitation")
)

// Status of an invitation. Pending moves to accepted once and never back.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// Invitation is one ledger entry, keyed by email.
type Invitation struct {
	Email      string     `json:"email"`
	Code       string     `json:"code"`
	Status     Status     `json:"status"`
	InvitedAt  time.Time  `json:"invitedAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// Repository persists invitations by normalised email.
type Repository interface {
	Get(ctx context.Context, email string) (Invitation, error)
	Put(ctx context.Context, inv Invitation) error
	List(ctx context.Context) ([]Invitation, error)
}

// AccountCreator registers a new identity; session.Store satisfies it.
type AccountCreator interface {
	CreateAccount(ctx context.Context, email, password string) (*auth.Identity, error)
}

// Options configures a Ledger.
type Options struct {
	Codes otp.Generator
	Clock clock.Clock
	// CompanyName is shown in the invitation email.
	CompanyName func(ctx context.Context) string
	// RegistrationURL is linked from the invitation email.
	RegistrationURL string
	Auditor         *auth.Auditor
	Logger          *slog.Logger
}

// Ledger issues, verifies and accepts invitations.
type Ledger struct {
	repo   Repository
	sender mail.Sender
	opts   Options
	codes  otp.Generator
	clock  clock.Clock
	logger *slog.Logger
}

// NewLedger creates a ledger over repo.
func NewLedger(repo Repository, sender mail.Sender, opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:   repo,
		sender: sender,
		opts:   opts,
		codes:  otp.OrRandom(opts.Codes),
		clock:  clock.OrReal(opts.Clock),
		logger: logger,
	}
}

// Invite upserts a pending invitation with a fresh code and emails it.
// When the email cannot be sent the entry is kept and returned together
// with ErrSendFailed; inviting again retries with a new code.
func (l *Ledger) Invite(ctx context.Context, email string) (Invitation, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return Invitation{}, ErrInvalidEmail
	}
	inv := Invitation{
		Email:     email,
		Code:      l.codes.Generate(),
		Status:    StatusPending,
		InvitedAt: l.clock.Now().UTC(),
	}
	if err := l.repo.Put(ctx, inv); err != nil {
		return Invitation{}, fmt.Errorf("store invitation: %w", err)
	}

	company := ""
	if l.opts.CompanyName != nil {
		company = l.opts.CompanyName(ctx)
	}
	actor := actorEmail(ctx)
	if res := l.sender.Send(ctx, mail.Invitation(email, inv.Code, company, l.opts.RegistrationURL)); !res.Success {
		l.logger.Error("invitation email failed", slog.String("invitee", email))
		l.audit(ctx, "invitation.send_failed", actor, email)
		return inv, ErrSendFailed
	}
	l.audit(ctx, "invitation.issued", actor, email)
	return inv, nil
}

// Verify reports whether a pending invitation exists for email with code.
func (l *Ledger) Verify(ctx context.Context, email, code string) (bool, error) {
	inv, err := l.repo.Get(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inv.Status == StatusPending && otp.Match(inv.Code, strings.TrimSpace(code)), nil
}

// Accept marks the invitation for email accepted. Accepting twice is a
// no-op.
func (l *Ledger) Accept(ctx context.Context, email string) error {
	inv, err := l.repo.Get(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if inv.Status == StatusAccepted {
		return nil
	}
	now := l.clock.Now().UTC()
	inv.Status = StatusAccepted
	inv.AcceptedAt = &now
	return l.repo.Put(ctx, inv)
}

// List returns every invitation, newest first.
func (l *Ledger) List(ctx context.Context) ([]Invitation, error) {
	list, err := l.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].InvitedAt.After(list[j].InvitedAt) })
	return list, nil
}

// Complete registers an invited officer: the invitation must verify, the
// account is created upstream and the invitation is then accepted.
func (l *Ledger) Complete(ctx context.Context, accounts AccountCreator, email, code, password string) (*auth.Identity, error) {
	ok, err := l.Verify(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.audit(ctx, "invitation.rejected", "", auth.NormalizeEmail(email))
		return nil, ErrInvalidInvitation
	}

	id, err := accounts.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := l.Accept(ctx, email); err != nil {
		// The account exists; a retry would hit ErrEmailInUse, so only log.
		l.logger.Error("accept invitation failed", slog.String("invitee", id.Email), slog.String("error", err.Error()))
	}
	l.audit(ctx, "invitation.accepted", id.Email, id.Email)
	return id, nil
}

func (l *Ledger) audit(ctx context.Context, action, actor, invitee string) {
	ev := auth.Event{Action: action, Actor: actor, CorrID: auth.CorrIDFromContext(ctx), Details: invitee}
	if err := l.opts.Auditor.Record(ctx, ev); err != nil {
		l.logger.Warn("audit append failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

func actorEmail(ctx context.Context) string {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return id.Email
	}
	return ""
}
