package guard

import (
	"testing"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/session"
)

var allPaths = []string{
	"/", "/login", "/verify-2fa", "/complete-invitation",
	"/invoices/new", "/invoices/abc", "/invoices/abc/view",
	"/clients", "/settings", "/invites", "/invites/pending", "/help",
	"login", "/login/", "/invoices/new?from=dash", "/invitesx",
}

func allInputs() []Input {
	var out []Input
	for _, path := range allPaths {
		for _, loading := range []bool{false, true} {
			for _, authed := range []bool{false, true} {
				for _, verified := range []bool{false, true} {
					for _, role := range []auth.Role{"", auth.RoleAdmin, auth.RoleOfficer} {
						out = append(out, Input{Path: path, Loading: loading, Authenticated: authed, Verified: verified, Role: role})
					}
				}
			}
		}
	}
	return out
}

func TestDecide_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{
			name: "loading renders placeholder",
			in:   Input{Path: "/invoices/new", Loading: true},
			want: Decision{Outcome: Loading},
		},
		{
			name: "anonymous protected path goes to login",
			in:   Input{Path: "/invoices/new"},
			want: Decision{Outcome: Redirect, Target: PathLogin},
		},
		{
			name: "anonymous login renders unwrapped",
			in:   Input{Path: "/login"},
			want: Decision{Outcome: Render},
		},
		{
			name: "anonymous invitation completion renders unwrapped",
			in:   Input{Path: "/complete-invitation"},
			want: Decision{Outcome: Render},
		},
		{
			name: "unverified home goes to verify",
			in:   Input{Path: "/", Authenticated: true, Role: auth.RoleOfficer},
			want: Decision{Outcome: Redirect, Target: PathVerify},
		},
		{
			name: "unverified login also goes to verify",
			in:   Input{Path: "/login", Authenticated: true, Role: auth.RoleOfficer},
			want: Decision{Outcome: Redirect, Target: PathVerify},
		},
		{
			name: "unverified verify screen renders unwrapped",
			in:   Input{Path: "/verify-2fa", Authenticated: true, Role: auth.RoleAdmin},
			want: Decision{Outcome: Render},
		},
		{
			name: "verified auth-flow path goes home",
			in:   Input{Path: "/verify-2fa", Authenticated: true, Verified: true, Role: auth.RoleOfficer},
			want: Decision{Outcome: Redirect, Target: PathHome},
		},
		{
			name: "officer admin path goes home",
			in:   Input{Path: "/invites", Authenticated: true, Verified: true, Role: auth.RoleOfficer},
			want: Decision{Outcome: Redirect, Target: PathHome},
		},
		{
			name: "admin admin path renders in shell",
			in:   Input{Path: "/invites", Authenticated: true, Verified: true, Role: auth.RoleAdmin},
			want: Decision{Outcome: Render, Shell: true},
		},
		{
			name: "officer protected path renders in shell",
			in:   Input{Path: "/invoices/abc/view", Authenticated: true, Verified: true, Role: auth.RoleOfficer},
			want: Decision{Outcome: Render, Shell: true},
		},
		{
			name: "prefix lookalike is not admin only",
			in:   Input{Path: "/invitesx", Authenticated: true, Verified: true, Role: auth.RoleOfficer},
			want: Decision{Outcome: Render, Shell: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.in); got != tt.want {
				t.Errorf("Decide(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecide_TotalAndDeterministic(t *testing.T) {
	for _, in := range allInputs() {
		d := Decide(in)
		if again := Decide(in); again != d {
			t.Fatalf("Decide(%+v) not deterministic: %+v then %+v", in, d, again)
		}
		switch d.Outcome {
		case Loading:
			if d.Target != "" || d.Shell {
				t.Errorf("Decide(%+v) loading carries %+v", in, d)
			}
		case Redirect:
			if d.Target == "" || d.Shell {
				t.Errorf("Decide(%+v) redirect malformed: %+v", in, d)
			}
		case Render:
			if d.Target != "" {
				t.Errorf("Decide(%+v) render carries a target: %+v", in, d)
			}
		default:
			t.Errorf("Decide(%+v) produced outcome %v", in, d.Outcome)
		}
	}
}

func TestDecide_NoRedirectLoops(t *testing.T) {
	for _, in := range allInputs() {
		d := Decide(in)
		if d.Outcome != Redirect {
			continue
		}
		if d.Target == Normalize(in.Path) {
			t.Errorf("Decide(%+v) redirects to itself", in)
		}
		next := in
		next.Path = d.Target
		if nd := Decide(next); nd.Outcome == Redirect {
			t.Errorf("redirect chain: %s -> %s -> %s for %+v", in.Path, d.Target, nd.Target, in)
		}
	}
}

func TestDecide_ShellOnlyOutsideAuthFlow(t *testing.T) {
	for _, in := range allInputs() {
		d := Decide(in)
		if d.Outcome == Render && d.Shell == IsAuthFlow(in.Path) {
			t.Errorf("Decide(%+v) shell = %v", in, d.Shell)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":                  "/",
		"/":                 "/",
		"login":             "/login",
		"/login/":           "/login",
		"/invoices/1?x=y":   "/invoices/1",
		"/settings#company": "/settings",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromState(t *testing.T) {
	st := session.State{
		Identity:          &auth.Identity{Email: "a@b.com"},
		Email:             "a@b.com",
		Role:              auth.RoleOfficer,
		TwoFactorVerified: true,
	}
	in := FromState("/clients", st)
	if !in.Authenticated || !in.Verified || in.Role != auth.RoleOfficer || in.Loading {
		t.Errorf("FromState() = %+v", in)
	}

	// A verified flag without an identity never counts.
	in = FromState("/clients", session.State{TwoFactorVerified: true})
	if in.Verified {
		t.Error("verified without identity")
	}
}
