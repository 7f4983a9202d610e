// Package server assembles the HTTP surface: JSON APIs grouped by the
// access level they need and server-rendered pages behind the route guard.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codelits/invoice-manager/internal/assist"
	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clients"
	"github.com/codelits/invoice-manager/internal/invitation"
	"github.com/codelits/invoice-manager/internal/invoice"
	"github.com/codelits/invoice-manager/internal/session"
	"github.com/codelits/invoice-manager/internal/settings"
	"github.com/codelits/invoice-manager/internal/twofactor"
)

// Deps are the handlers the router mounts. Every field is required.
type Deps struct {
	Sessions    *session.Manager
	Session     *session.Handler
	TwoFactor   *twofactor.Handler
	Invitations *invitation.Handler
	Audit       *auth.Handler
	Invoices    *invoice.Handler
	Clients     *clients.Handler
	Settings    *settings.Handler
	Assist      *assist.Handler
	Logger      *slog.Logger
}

// New returns the application router.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(auth.Correlation)
	r.Use(d.Sessions.Middleware)

	r.Route("/api", func(r chi.Router) {
		// Public.
		r.Post("/session/login", d.Session.Login)
		r.Get("/session", d.Session.Get)
		r.Post("/invitations/complete", d.Invitations.Complete)

		// Signed in, verification pending.
		r.Group(func(r chi.Router) {
			r.Use(session.RequireIdentity)
			r.Post("/session/logout", d.Session.Logout)
			r.Get("/2fa", d.TwoFactor.Get)
			r.Post("/2fa/enter", d.TwoFactor.Enter)
			r.Post("/2fa/resend", d.TwoFactor.Resend)
			r.Post("/2fa/verify", d.TwoFactor.Verify)
		})

		r.Group(func(r chi.Router) {
			r.Use(session.RequireVerified)
			r.Use(session.EndWithSession)
			r.Route("/invoices", d.Invoices.Routes)
			r.Route("/clients", d.Clients.Routes)
			r.Get("/settings", d.Settings.Get)
			r.Put("/settings", d.Settings.Put)
			r.Route("/assist", d.Assist.Routes)
		})

		r.Group(func(r chi.Router) {
			r.Use(session.RequireRole(auth.RoleAdmin))
			r.Post("/invitations", d.Invitations.Issue)
			r.Get("/invitations", d.Invitations.List)
			r.Get("/audit", d.Audit.ListAudit)
		})
	})

	p := &pages{logger: d.Logger}
	r.Get("/", p.serve("Dashboard", nil))
	r.Get("/login", p.serve("Sign in", nil))
	r.Get("/verify-2fa", p.serve("Two-factor verification", nil))
	r.Get("/complete-invitation", p.serve("Complete your invitation", nil))
	r.Get("/invoices/new", p.serve("New invoice", nil))
	r.Get("/invoices/{id}", p.serve("Edit invoice", nil))
	r.Get("/invoices/{id}/view", p.serve("Invoice", d.Invoices.Sheet))
	r.Get("/clients", p.serve("Clients & Projects", nil))
	r.Get("/settings", p.serve("Settings", nil))
	r.Get("/invites", p.serve("Invite officers", nil))
	r.Get("/help", p.serve("Help", nil))
	return r
}
