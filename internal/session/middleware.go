package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/sessions"

	"github.com/codelits/invoice-manager/internal/auth"
)

type storeContextKey struct{}

// ContextWithStore adds the request's session store to ctx.
func ContextWithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, s)
}

// FromContext returns the session store installed by Manager.Middleware.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeContextKey{}).(*Store)
	return s, ok && s != nil
}

// Manager restores a Store for every request from the session cookie.
type Manager struct {
	cookies  sessions.Store
	provider auth.IdentityProvider
	cfg      Config
	opts     Options
	logger   *slog.Logger
}

// NewManager creates the middleware factory.
func NewManager(provider auth.IdentityProvider, cfg Config, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookies := sessions.NewCookieStore(cfg.HashKey, cfg.BlockKey)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{cookies: cookies, provider: provider, cfg: cfg, opts: opts, logger: logger}
}

// Middleware loads the session cookie, restores the Store and exposes it
// (and the identity, when present) through the request context. The
// cookie is written back before the response header.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := auth.RequestCorrID(r)

		sess, err := m.cookies.Get(r, m.cfg.CookieName)
		if err != nil {
			// Undecodable cookie; gorilla hands back a fresh session.
			m.logger.Warn("discarding invalid session cookie", slog.String("correlationId", corrID))
		}
		storage := NewCookieStorage(sess)
		store := NewStore(m.provider, storage, m.opts)
		if err := store.Restore(r.Context()); err != nil {
			m.logger.Error("session restore failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
			auth.WriteError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Could not restore session", corrID, true)
			return
		}

		ctx := ContextWithStore(r.Context(), store)
		if id := store.State().Identity; id != nil {
			ctx = auth.ContextWithIdentity(ctx, id)
		}
		r = r.WithContext(ctx)

		sw := &savingWriter{ResponseWriter: w, save: func() {
			if err := storage.Save(r, w); err != nil {
				m.logger.Error("session save failed", slog.String("correlationId", corrID), slog.String("error", err.Error()))
			}
		}}
		next.ServeHTTP(sw, r)
		sw.commit()
	})
}

// savingWriter writes the session cookie right before the header.
type savingWriter struct {
	http.ResponseWriter
	save func()
	once sync.Once
}

func (w *savingWriter) commit() { w.once.Do(w.save) }

func (w *savingWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *savingWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *savingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequireIdentity rejects requests without a signed-in identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		if !ok || !s.State().Authenticated() {
			auth.WriteError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", auth.RequestCorrID(r), false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EndWithSession cancels the request context once the session that
// admitted the request signs out, here or upstream, or loses its
// verification. Event streams served behind it stop with the session.
func EndWithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		unsubscribe := s.Subscribe(func(st State) {
			if !st.Authenticated() || !st.TwoFactorVerified {
				cancel()
			}
		})
		defer unsubscribe()
		stop := s.Watch()
		defer stop()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireVerified rejects requests from sessions that have not passed
// two-factor verification.
func RequireVerified(next http.Handler) http.Handler {
	return RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		if !s.State().TwoFactorVerified {
			auth.WriteError(w, http.StatusForbidden, "TWO_FACTOR_REQUIRED", "Two-factor verification required", auth.RequestCorrID(r), false)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireRole creates middleware that enforces a role on verified sessions.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireVerified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, _ := FromContext(r.Context())
			if s.State().Role != role {
				auth.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Required role: "+string(role), auth.RequestCorrID(r), false)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
