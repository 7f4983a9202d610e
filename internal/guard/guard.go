// Package guard maps a requested path and the caller's session state to
// exactly one navigation outcome.
package guard

import (
	"strings"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/session"
)

// Well-known paths.
const (
	PathHome               = "/"
	PathLogin              = "/login"
	PathVerify             = "/verify-2fa"
	PathCompleteInvitation = "/complete-invitation"
	PathInvites            = "/invites"
)

// Outcome is the kind of decision.
type Outcome int

const (
	// Loading renders a placeholder; the session is not resolved yet.
	Loading Outcome = iota
	// Redirect navigates to Decision.Target.
	Redirect
	// Render shows the requested page.
	Render
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	}
	return "unknown"
}

// Input is everything a decision depends on.
type Input struct {
	Path          string
	Loading       bool
	Authenticated bool
	Verified      bool
	Role          auth.Role
}

// Decision is the result of Decide. Target is set only for Redirect;
// Shell only for Render.
type Decision struct {
	Outcome Outcome
	Target  string
	// Shell wraps the page in the authenticated navigation chrome.
	Shell bool
}

var authFlowPaths = map[string]bool{
	PathLogin:              true,
	PathVerify:             true,
	PathCompleteInvitation: true,
}

var adminOnlyPrefixes = []string{PathInvites}

// IsAuthFlow reports whether path is reachable without full authentication.
func IsAuthFlow(path string) bool {
	return authFlowPaths[Normalize(path)]
}

// IsAdminOnly reports whether path is restricted to admins.
func IsAdminOnly(path string) bool {
	p := Normalize(path)
	for _, prefix := range adminOnlyPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Normalize strips query and fragment, ensures a leading slash and drops
// trailing slashes.
func Normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Decide evaluates the rules in order; the first match wins. An
// unverified identity is sent to the verification screen from every
// other path, including the remaining auth-flow paths, so verify-2fa and
// login can never redirect to each other.
func Decide(in Input) Decision {
	path := Normalize(in.Path)
	authFlow := authFlowPaths[path]

	switch {
	case in.Loading:
		return Decision{Outcome: Loading}
	case !in.Authenticated && !authFlow:
		return Decision{Outcome: Redirect, Target: PathLogin}
	case !in.Authenticated:
		return Decision{Outcome: Render}
	case !in.Verified && path != PathVerify:
		return Decision{Outcome: Redirect, Target: PathVerify}
	case in.Verified && authFlow:
		return Decision{Outcome: Redirect, Target: PathHome}
	case in.Verified && in.Role != auth.RoleAdmin && IsAdminOnly(path):
		return Decision{Outcome: Redirect, Target: PathHome}
	}
	return Decision{Outcome: Render, Shell: !authFlow}
}

// FromState builds the decision input for path from a session snapshot.
func FromState(path string, st session.State) Input {
	return Input{
		Path:          path,
		Loading:       st.Loading,
		Authenticated: st.Authenticated(),
		Verified:      st.Authenticated() && st.TwoFactorVerified,
		Role:          st.Role,
	}
}
