package twofactor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/mail"
	"github.com/codelits/invoice-manager/internal/otp"
	"github.com/codelits/invoice-manager/internal/session"
)

type httpClient struct {
	handler http.Handler
	cookie  *http.Cookie
}

func (c *httpClient) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			c.cookie = nil
		} else {
			c.cookie = ck
		}
	}
	return rec
}

func newHTTPClient(t *testing.T) (*httpClient, *mail.MemorySender) {
	t.Helper()
	p := auth.NewLocalProvider(auth.NewMemoryUsers(), auth.Config{PasswordHashAlgorithm: "bcrypt", BcryptCost: 4}, nil, nil)
	if err := p.EnsureUser(context.Background(), officer, password); err != nil {
		t.Fatal(err)
	}
	mgr := session.NewManager(p, session.Config{
		CookieName: "s",
		HashKey:    bytes.Repeat([]byte("h"), 32),
		BlockKey:   bytes.Repeat([]byte("b"), 32),
	}, session.Options{AdminEmail: adminEmail})

	sender := mail.NewMemorySender()
	flow := New(sender, Options{
		AdminNotifyEmail: notifyEmail,
		Clock:            clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Codes:            otp.Sequence("654321"),
	})
	h := NewHandler(flow)
	sh := session.NewHandler(nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session/login", sh.Login)
	mux.Handle("GET /api/2fa", session.RequireIdentity(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/2fa/enter", session.RequireIdentity(http.HandlerFunc(h.Enter)))
	mux.Handle("POST /api/2fa/resend", session.RequireIdentity(http.HandlerFunc(h.Resend)))
	mux.Handle("POST /api/2fa/verify", session.RequireIdentity(http.HandlerFunc(h.Verify)))
	return &httpClient{handler: auth.Correlation(mgr.Middleware(mux))}, sender
}

func TestHandler_FullFlow(t *testing.T) {
	c, sender := newHTTPClient(t)

	if rec := c.do(t, http.MethodPost, "/api/2fa/enter", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous enter = %d, want 401", rec.Code)
	}
	c.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": officer, "password": password})

	rec := c.do(t, http.MethodPost, "/api/2fa/enter", nil)
	var st StatusResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if rec.Code != http.StatusOK || !st.Sent || st.Status != StatusCodeSent {
		t.Fatalf("enter = %d %+v", rec.Code, st)
	}

	rec = c.do(t, http.MethodPost, "/api/2fa/resend", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if !st.Throttled || st.RetryAfterSeconds != 30 {
		t.Errorf("resend = %+v, want throttled for 30s", st)
	}
	if sender.Calls() != 1 {
		t.Errorf("send calls = %d, want 1", sender.Calls())
	}

	if rec := c.do(t, http.MethodPost, "/api/2fa/verify", VerifyRequest{Code: "111111"}); rec.Code != http.StatusBadRequest {
		t.Errorf("wrong code = %d, want 400", rec.Code)
	}
	rec = c.do(t, http.MethodPost, "/api/2fa/verify", VerifyRequest{Code: "654321"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify = %d: %s", rec.Code, rec.Body)
	}
	var ss session.StateResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &ss)
	if !ss.TwoFactorVerified {
		t.Error("session not verified after correct code")
	}

	rec = c.do(t, http.MethodGet, "/api/2fa", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Status != StatusVerified {
		t.Errorf("status = %q", st.Status)
	}
}

func TestHandler_SendFailure(t *testing.T) {
	c, sender := newHTTPClient(t)
	c.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": officer, "password": password})
	sender.Fail(true)

	rec := c.do(t, http.MethodPost, "/api/2fa/enter", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("enter = %d, want 502", rec.Code)
	}
	if rec := c.do(t, http.MethodGet, "/api/2fa", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("session still active after send failure: %d", rec.Code)
	}
}
