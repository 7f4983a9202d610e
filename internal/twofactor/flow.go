// Package twofactor issues and checks the one-time codes that gate a
// signed-in session. Challenge state lives in the session's Storage next
// to the session descriptor, so it is cleared together with the session.
package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/mail"
	"github.com/codelits/invoice-manager/internal/otp"
	"github.com/codelits/invoice-manager/internal/session"
)

// Storage keys owned by the flow.
const (
	KeyCode          = "2fa-code"
	KeyLastSent      = "2fa-last-sent"
	KeyAutoRequested = "2fa-auto-requested"
	KeyAttempts      = "2fa-attempts"
)

// DefaultThrottle is the minimum interval between two code sends.
const DefaultThrottle = 30 * time.Second

var (
	ErrSendFailed      = errors.New("twofactor: verification email could not be sent")
	ErrInvalidCode     = errors.New("twofactor: incorrect code")
	ErrNoChallenge     = errors.New("twofactor: no code has been sent")
	ErrAlreadyVerified = errors.New("twofactor: session already verified")
)

// Status is the challenge state of a session.
type Status string

const (
	StatusNoChallenge Status = "no_challenge"
	StatusCodeSent    Status = "code_sent"
	StatusVerified    Status = "verified"
	StatusLoggedOut   Status = "logged_out"
)

// Result describes the outcome of a send request.
type Result struct {
	Sent bool
	// SentTo is the address the code went to.
	SentTo    string
	Throttled bool
	// RetryAfter is the remaining throttle window; RemainingSeconds is the
	// same value rounded up to whole seconds.
	RetryAfter       time.Duration
	RemainingSeconds int
}

// Options configures a Flow.
type Options struct {
	// AdminNotifyEmail receives the admin's codes.
	AdminNotifyEmail string
	Throttle         time.Duration
	Clock            clock.Clock
	Codes            otp.Generator
	Auditor          *auth.Auditor
	Logger           *slog.Logger
}

// Flow is the two-factor state machine. A single Flow serves every
// session; per-session state is read from the session's storage.
type Flow struct {
	sender mail.Sender
	opts   Options
	clock  clock.Clock
	codes  otp.Generator
	logger *slog.Logger
}

// New creates a flow that sends codes through sender.
func New(sender mail.Sender, opts Options) *Flow {
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		sender: sender,
		opts:   opts,
		clock:  clock.OrReal(opts.Clock),
		codes:  otp.OrRandom(opts.Codes),
		logger: logger,
	}
}

// Target returns the address that receives codes for st.
func (f *Flow) Target(st session.State) string {
	if st.Role == auth.RoleAdmin {
		return f.opts.AdminNotifyEmail
	}
	return st.Email
}

// Status derives the challenge state of s.
func (f *Flow) Status(s *session.Store) Status {
	st := s.State()
	switch {
	case !st.Authenticated():
		return StatusLoggedOut
	case st.TwoFactorVerified:
		return StatusVerified
	}
	if code, ok := s.Storage().Get(KeyCode); ok && code != "" {
		return StatusCodeSent
	}
	return StatusNoChallenge
}

// Attempts returns the number of rejected codes for the active challenge.
func (f *Flow) Attempts(s *session.Store) int {
	raw, _ := s.Storage().Get(KeyAttempts)
	n, _ := strconv.Atoi(raw)
	return n
}

// RequestCode sends a fresh code unless the throttle window is still
// open, in which case nothing is sent and the remaining wait is reported.
// A failed send restores the previous throttle timestamp and logs the
// session out.
func (f *Flow) RequestCode(ctx context.Context, s *session.Store) (Result, error) {
	st := s.State()
	if !st.Authenticated() {
		return Result{}, session.ErrNoIdentity
	}
	if st.TwoFactorVerified {
		return Result{}, ErrAlreadyVerified
	}

	storage := s.Storage()
	now := f.clock.Now()
	prev, hadPrev := storage.Get(KeyLastSent)
	if last, ok := parseUnixNano(prev); hadPrev && ok {
		if elapsed := now.Sub(last); elapsed < f.opts.Throttle {
			wait := f.opts.Throttle - elapsed
			return Result{
				Throttled:        true,
				RetryAfter:       wait,
				RemainingSeconds: int(math.Ceil(wait.Seconds())),
			}, nil
		}
	}

	storage.Set(KeyLastSent, strconv.FormatInt(now.UnixNano(), 10))
	code := f.codes.Generate()
	target := f.Target(st)

	logger := auth.CorrelationLogger(f.logger, auth.CorrIDFromContext(ctx), st.Email)
	if res := f.sender.Send(ctx, mail.TwoFactorCode(target, code)); !res.Success {
		if hadPrev {
			storage.Set(KeyLastSent, prev)
		} else {
			storage.Remove(KeyLastSent)
		}
		logger.Error("verification code send failed; logging out")
		f.audit(ctx, "2fa.send_failed", st.Email)
		if err := s.Logout(ctx); err != nil {
			logger.Warn("logout after send failure", slog.String("error", err.Error()))
		}
		return Result{}, ErrSendFailed
	}

	// A new code replaces the previous one.
	storage.Set(KeyCode, code)
	storage.Remove(KeyAttempts)
	logger.Info("verification code sent")
	f.audit(ctx, "2fa.code_sent", st.Email)
	return Result{Sent: true, SentTo: target}, nil
}

// Enter runs the automatic send on first arrival at the verification
// screen. It sends at most once per session and never while a challenge
// is already active; later sends go through RequestCode.
func (f *Flow) Enter(ctx context.Context, s *session.Store) (Result, error) {
	st := s.State()
	if !st.Authenticated() {
		return Result{}, session.ErrNoIdentity
	}
	if st.TwoFactorVerified {
		return Result{}, nil
	}
	storage := s.Storage()
	if _, done := storage.Get(KeyAutoRequested); done {
		return Result{}, nil
	}
	if code, ok := storage.Get(KeyCode); ok && code != "" {
		return Result{}, nil
	}
	storage.Set(KeyAutoRequested, "1")
	return f.RequestCode(ctx, s)
}

// Verify compares code against the active challenge. A match clears the
// challenge and marks the session verified; a mismatch leaves it active.
func (f *Flow) Verify(ctx context.Context, s *session.Store, code string) error {
	st := s.State()
	if !st.Authenticated() {
		return session.ErrNoIdentity
	}
	storage := s.Storage()
	stored, ok := storage.Get(KeyCode)
	if !ok || stored == "" {
		return ErrNoChallenge
	}

	logger := auth.CorrelationLogger(f.logger, auth.CorrIDFromContext(ctx), st.Email)
	if !otp.Match(stored, code) {
		attempts := f.Attempts(s) + 1
		storage.Set(KeyAttempts, strconv.Itoa(attempts))
		logger.Info("verification code rejected", slog.Int("attempts", attempts))
		f.audit(ctx, "2fa.code_rejected", st.Email)
		return ErrInvalidCode
	}

	storage.Remove(KeyCode)
	storage.Remove(KeyLastSent)
	storage.Remove(KeyAttempts)
	return s.CompleteTwoFactor(ctx)
}

func (f *Flow) audit(ctx context.Context, action, actor string) {
	if err := f.opts.Auditor.Record(ctx, auth.Event{Action: action, Actor: actor, CorrID: auth.CorrIDFromContext(ctx)}); err != nil {
		f.logger.Warn("audit append failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

func parseUnixNano(v string) (time.Time, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}
