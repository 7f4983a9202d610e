package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Errors returned by identity providers and user repositories.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password too short")
)

// MinPasswordLength is enforced on account creation.
const MinPasswordLength = 8

// Role is the privilege level of a signed-in identity.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleOfficer Role = "officer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOfficer
}

// ResolveRole maps an email to its role: an exact match with the
// configured admin address is admin, everything else is officer. Both
// sides are expected in NormalizeEmail form.
func ResolveRole(email, adminEmail string) Role {
	if adminEmail != "" && email == adminEmail {
		return RoleAdmin
	}
	return RoleOfficer
}

// Identity is a signed-in principal as reported by the identity provider.
// Token is opaque and owned by the provider; it is empty for identities
// returned from CreateUser.
type Identity struct {
	Token string `json:"-"`
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// IdentityEvent is delivered to provider subscribers whenever a token is
// issued or revoked. Identity is nil on sign-out.
type IdentityEvent struct {
	Token    string
	Identity *Identity
}

// IdentityProvider is the upstream authentication collaborator.
type IdentityProvider interface {
	// SignIn checks credentials and issues a new token.
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// CreateUser registers a new identity without signing it in.
	CreateUser(ctx context.Context, email, password string) (*Identity, error)
	// SignOut revokes token. Unknown tokens are ignored.
	SignOut(ctx context.Context, token string) error
	// Resolve returns the identity behind token, or nil if the token is
	// unknown or has been revoked.
	Resolve(ctx context.Context, token string) (*Identity, error)
	// Subscribe registers fn for identity events and returns a function
	// that removes the registration.
	Subscribe(fn func(IdentityEvent)) (unsubscribe func())
}

// User is a stored account.
type User struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRepository persists accounts for LocalProvider.
type UserRepository interface {
	// FindByEmail returns ErrUserNotFound when no account matches.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create returns ErrEmailInUse when the email is taken.
	Create(ctx context.Context, user User) error
}

// AuditLogEntry is one link of the authentication audit chain.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	CorrID    string    `json:"corrId,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Action    string    `json:"action"` // e.g. "auth.login", "auth.2fa_verified", "invite.sent"
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
}

// AuditRecorder records authentication audit events.
type AuditRecorder interface {
	// Record appends an audit entry.
	Record(ctx context.Context, entry AuditLogEntry) error
	// Last returns the last entry for chain hashing.
	Last(ctx context.Context) (AuditLogEntry, error)
	// Entries returns the chain oldest first.
	Entries(ctx context.Context) ([]AuditLogEntry, error)
}

// NormalizeEmail trims and lower-cases an address. Stored users and the
// configured admin address are both kept in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type identityContextKey struct{}

type systemContextKey struct{}

// ContextWithIdentity adds the signed-in identity to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from ctx.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}

// WithSystem marks ctx as trusted server-side work that may access
// persistence without a signed-in identity, such as invitation
// registration.
func WithSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemContextKey{}, true)
}

// IsSystem reports whether ctx was marked with WithSystem.
func IsSystem(ctx context.Context) bool {
	v, _ := ctx.Value(systemContextKey{}).(bool)
	return v
}

// Authenticated reports whether ctx carries an identity or system mark.
func Authenticated(ctx context.Context) bool {
	if IsSystem(ctx) {
		return true
	}
	_, ok := IdentityFromContext(ctx)
	return ok
}
