package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/codelits/invoice-manager/internal/clock"
)

// LocalProvider is an IdentityProvider backed by a UserRepository. Issued
// tokens live in memory, so a restart signs every session out.
type LocalProvider struct {
	users  UserRepository
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.RWMutex
	tokens    map[string]Identity // token -> identity
	listeners map[int]func(IdentityEvent)
	nextID    int
}

// NewLocalProvider creates a provider over users.
func NewLocalProvider(users UserRepository, cfg Config, clk clock.Clock, logger *slog.Logger) *LocalProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		users:     users,
		cfg:       cfg,
		clock:     clock.OrReal(clk),
		logger:    logger,
		tokens:    make(map[string]Identity),
		listeners: make(map[int]func(IdentityEvent)),
	}
}

// SignIn validates credentials and issues a token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	user, err := p.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	id := Identity{Token: generateToken(), UID: user.UID, Email: user.Email}
	p.mu.Lock()
	p.tokens[id.Token] = id
	p.mu.Unlock()

	p.emit(IdentityEvent{Token: id.Token, Identity: &id})
	return &id, nil
}

// CreateUser registers a new account. The returned identity carries no
// token; the caller signs in separately.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (*Identity, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := HashPassword(password, p.cfg)
	if err != nil {
		return nil, err
	}
	user := User{
		UID:          uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    p.clock.Now().UTC(),
	}
	if err := p.users.Create(ctx, user); err != nil {
		return nil, err
	}
	p.logger.Info("account created", slog.String("uid", user.UID))
	return &Identity{UID: user.UID, Email: user.Email}, nil
}

// EnsureUser creates the account unless the email is already registered.
func (p *LocalProvider) EnsureUser(ctx context.Context, email, password string) error {
	if _, err := p.users.FindByEmail(ctx, NormalizeEmail(email)); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	_, err := p.CreateUser(ctx, email, password)
	if errors.Is(err, ErrEmailInUse) {
		return nil
	}
	return err
}

// SignOut revokes token and notifies subscribers.
func (p *LocalProvider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	_, ok := p.tokens[token]
	delete(p.tokens, token)
	p.mu.Unlock()

	if ok {
		p.emit(IdentityEvent{Token: token})
	}
	return nil
}

// Resolve returns the identity for token, or nil when it is not live.
func (p *LocalProvider) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.tokens[token]
	if !ok {
		return nil, ctx.Err()
	}
	return &id, nil
}

// Subscribe registers fn for sign-in and sign-out events.
func (p *LocalProvider) Subscribe(fn func(IdentityEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *LocalProvider) emit(ev IdentityEvent) {
	p.mu.RLock()
	fns := make([]func(IdentityEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// --- In-memory user repository ---

// MemoryUsers is an in-memory UserRepository.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User // normalized email -> user
}

// NewMemoryUsers creates an empty repository.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User)}
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryUsers) Create(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := NormalizeEmail(user.Email)
	if _, ok := m.users[key]; ok {
		return ErrEmailInUse
	}
	m.users[key] = user
	return nil
}

// --- In-memory Audit Recorder ---

// InMemoryAuditRecorder provides an in-memory audit log implementation.
type InMemoryAuditRecorder struct {
	mu      sync.RWMutex
	entries []AuditLogEntry
}

// NewInMemoryAuditRecorder creates a new in-memory audit recorder.
func NewInMemoryAuditRecorder() *InMemoryAuditRecorder {
	return &InMemoryAuditRecorder{}
}

// Record appends an audit entry.
func (r *InMemoryAuditRecorder) Record(_ context.Context, entry AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Last returns the most recent entry.
func (r *InMemoryAuditRecorder) Last(_ context.Context) (AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return AuditLogEntry{}, fmt.Errorf("no entries")
	}
	return r.entries[len(r.entries)-1], nil
}

// Entries returns a copy of the chain.
func (r *InMemoryAuditRecorder) Entries(_ context.Context) ([]AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]AuditLogEntry{}, r.entries...), nil
}

// Actions returns the recorded action names in order (for tests and logs).
func (r *InMemoryAuditRecorder) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
