package server

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/guard"
	"github.com/codelits/invoice-manager/internal/session"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · Invoice Manager</title>
{{if .Loading}}<meta http-equiv="refresh" content="1">{{end}}
</head>
<body>
{{if .Shell}}<header>
<nav>
<a href="/">Dashboard</a>
<a href="/invoices/new">New invoice</a>
<a href="/clients">Clients &amp; Projects</a>
<a href="/settings">Settings</a>
{{if .Admin}}<a href="/invites">Invite officers</a>{{end}}
<a href="/help">Help</a>
</nav>
<form method="post" action="/api/session/logout"><span>{{.Email}}</span> <button type="submit">Sign out</button></form>
</header>{{end}}
<main data-page="{{.Path}}">
{{if .Loading}}<p class="loading">Loading…</p>{{else}}<h1>{{.Title}}</h1>{{end}}
</main>
</body>
</html>
`))

type pageData struct {
	Title   string
	Path    string
	Email   string
	Admin   bool
	Shell   bool
	Loading bool
}

type pages struct {
	logger *slog.Logger
}

// serve evaluates the route guard for the request and then redirects,
// shows the loading placeholder or renders the page. A non-nil content
// handler replaces the generic page body on Render.
func (p *pages) serve(title string, content http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var st session.State
		if s, ok := session.FromContext(r.Context()); ok {
			st = s.State()
		}
		d := guard.Decide(guard.FromState(r.URL.Path, st))
		switch d.Outcome {
		case guard.Redirect:
			http.Redirect(w, r, d.Target, http.StatusSeeOther)
			return
		case guard.Render:
			if content != nil {
				content(w, r)
				return
			}
		}
		p.write(w, r, pageData{
			Title:   title,
			Path:    guard.Normalize(r.URL.Path),
			Email:   st.Email,
			Admin:   st.Role == auth.RoleAdmin,
			Shell:   d.Shell,
			Loading: d.Outcome == guard.Loading,
		})
	}
}

func (p *pages) write(w http.ResponseWriter, r *http.Request, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		p.logger.Error("page render failed", slog.String("correlationId", auth.RequestCorrID(r)), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
