// Package session owns the caller's authentication state: who is signed
// in, with which role, and whether the two-factor gate has been passed.
//
// A Store is rebuilt from Storage on every request. It is the only writer
// of the session descriptor; route decisions and handlers read it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/codelits/invoice-manager/internal/auth"
)

// Storage keys owned by the store.
const (
	KeyToken   = "auth-token"
	KeySession = "auth-session"
)

// ErrNoIdentity is returned by operations that need a signed-in identity.
var ErrNoIdentity = errors.New("session: no signed-in identity")

// Descriptor is the persisted per-tab session object.
type Descriptor struct {
	Role              auth.Role `json:"role"`
	Email             string    `json:"email"`
	TwoFactorVerified bool      `json:"twoFactorVerified"`
}

// State is a snapshot of the store.
type State struct {
	// Loading is true until the identity provider has been consulted.
	Loading           bool
	Identity          *auth.Identity
	Email             string
	Role              auth.Role
	TwoFactorVerified bool
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool { return s.Identity != nil }

// Options configures a Store.
type Options struct {
	// AdminEmail is the address that resolves to the admin role.
	AdminEmail string
	Auditor    *auth.Auditor
	Logger     *slog.Logger
}

// Store is the session/role state machine for one tab.
type Store struct {
	provider auth.IdentityProvider
	storage  Storage
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// NewStore creates a store in the loading state. Call Restore to resolve
// the stored identity.
func NewStore(provider auth.IdentityProvider, storage Storage, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.AdminEmail = auth.NormalizeEmail(opts.AdminEmail)
	return &Store{
		provider:  provider,
		storage:   storage,
		opts:      opts,
		logger:    logger,
		state:     State{Loading: true},
		listeners: map[int]func(State){},
	}
}

// Storage returns the underlying storage so collaborating flows can keep
// their own keys alongside the session.
func (s *Store) Storage() Storage { return s.storage }

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Restore resolves the stored token against the identity provider. A
// token the provider no longer honours clears the session. A missing or
// foreign descriptor is rebuilt as not yet verified.
func (s *Store) Restore(ctx context.Context) error {
	token, ok := s.storage.Get(KeyToken)
	if !ok || token == "" {
		s.storage.Clear()
		s.setState(State{})
		return nil
	}

	id, err := s.provider.Resolve(ctx, token)
	if err != nil {
		s.setState(State{})
		return err
	}
	if id == nil {
		s.logger.Info("identity no longer valid; clearing session")
		s.storage.Clear()
		s.setState(State{})
		s.audit(ctx, "auth.signed_out", "")
		return nil
	}

	role := auth.ResolveRole(id.Email, s.opts.AdminEmail)
	verified := false
	if desc, ok := s.descriptor(); ok && desc.Email == id.Email {
		verified = desc.TwoFactorVerified
	} else {
		s.persist(Descriptor{Role: role, Email: id.Email})
	}

	s.setState(State{Identity: id, Email: id.Email, Role: role, TwoFactorVerified: verified})
	return nil
}

// Login checks credentials upstream and starts an unverified session.
// Every failure is reported as auth.ErrInvalidCredentials.
func (s *Store) Login(ctx context.Context, email, password string) (*auth.Identity, error) {
	id, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("sign-in failed", slog.String("error", err.Error()))
		}
		s.audit(ctx, "auth.login_failed", "")
		return nil, auth.ErrInvalidCredentials
	}

	role := auth.ResolveRole(id.Email, s.opts.AdminEmail)

	// A new sign-in discards any previous session and challenge state.
	s.storage.Clear()
	s.storage.Set(KeyToken, id.Token)
	s.persist(Descriptor{Role: role, Email: id.Email})
	s.setState(State{Identity: id, Email: id.Email, Role: role})

	s.audit(ctx, "auth.login", id.Email)
	return id, nil
}

// CreateAccount registers a new identity upstream. The current session
// is unchanged; the new officer signs in separately.
func (s *Store) CreateAccount(ctx context.Context, email, password string) (*auth.Identity, error) {
	id, err := s.provider.CreateUser(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "auth.account_created", id.Email)
	return id, nil
}

// CompleteTwoFactor marks the current identity as verified.
func (s *Store) CompleteTwoFactor(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Identity == nil {
		s.mu.Unlock()
		return ErrNoIdentity
	}
	next := s.state
	next.TwoFactorVerified = true
	s.mu.Unlock()

	s.persist(Descriptor{Role: next.Role, Email: next.Email, TwoFactorVerified: true})
	s.setState(next)
	s.audit(ctx, "auth.2fa_verified", next.Email)
	return nil
}

// Logout clears the session locally, including challenge state, and
// then revokes the token upstream.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.mu.Unlock()

	token, _ := s.storage.Get(KeyToken)
	s.storage.Clear()
	s.setState(State{})

	var err error
	if token != "" {
		err = s.provider.SignOut(ctx, token)
	}
	if prev.Identity != nil {
		s.audit(ctx, "auth.logout", prev.Email)
	}
	return err
}

// Watch follows identity provider notifications and force-clears the
// session when its token is revoked elsewhere. The returned function
// stops watching.
func (s *Store) Watch() (stop func()) {
	return s.provider.Subscribe(func(ev auth.IdentityEvent) {
		if ev.Identity != nil {
			return
		}
		s.mu.Lock()
		current := s.state.Identity
		s.mu.Unlock()
		if current == nil || current.Token != ev.Token {
			return
		}
		s.logger.Info("identity signed out upstream; clearing session")
		s.storage.Clear()
		s.setState(State{})
		s.audit(context.Background(), "auth.signed_out", current.Email)
	})
}

func (s *Store) descriptor() (Descriptor, bool) {
	raw, ok := s.storage.Get(KeySession)
	if !ok {
		return Descriptor{}, false
	}
	var d Descriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Descriptor{}, false
	}
	return d, true
}

func (s *Store) persist(d Descriptor) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	s.storage.Set(KeySession, string(raw))
}

func (s *Store) setState(next State) {
	s.mu.Lock()
	s.state = next
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

func (s *Store) audit(ctx context.Context, action, actor string) {
	if err := s.opts.Auditor.Record(ctx, auth.Event{Action: action, Actor: actor, CorrID: auth.CorrIDFromContext(ctx)}); err != nil {
		s.logger.Warn("audit append failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}
