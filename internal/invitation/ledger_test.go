package invitation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/docstore"
	"github.com/codelits/invoice-manager/internal/mail"
	"github.com/codelits/invoice-manager/internal/otp"
	"github.com/codelits/invoice-manager/internal/session"
)

func repositories() map[string]func() Repository {
	return map[string]func() Repository{
		"memory": func() Repository { return NewMemoryRepository() },
		"docstore": func() Repository {
			return NewDocRepository(docstore.NewMemoryStore(nil))
		},
	}
}

func newLedger(repo Repository, sender mail.Sender, codes ...string) *Ledger {
	return NewLedger(repo, sender, Options{
		Codes:           otp.Sequence(codes...),
		Clock:           clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		CompanyName:     func(context.Context) string { return "Codelits Studio" },
		RegistrationURL: "https://invoices.example/complete-invitation",
	})
}

func TestLedger_InviteVerifyAccept(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := auth.WithSystem(context.Background())
			sender := mail.NewMemorySender()
			l := newLedger(newRepo(), sender, "111111")

			inv, err := l.Invite(ctx, " Officer@Codelits.com ")
			if err != nil {
				t.Fatalf("Invite() error = %v", err)
			}
			if inv.Email != "officer@codelits.com" || inv.Status != StatusPending {
				t.Fatalf("invitation = %+v", inv)
			}
			msg, ok := sender.Last()
			if !ok || msg.To != "officer@codelits.com" || !strings.Contains(msg.HTMLBody, "111111") {
				t.Fatalf("email = %+v", msg)
			}

			if ok, _ := l.Verify(ctx, "officer@codelits.com", "222222"); ok {
				t.Error("wrong code verified")
			}
			if ok, _ := l.Verify(ctx, "other@codelits.com", "111111"); ok {
				t.Error("unknown email verified")
			}
			if ok, _ := l.Verify(ctx, "OFFICER@codelits.com", "111111"); !ok {
				t.Fatal("pending invitation did not verify")
			}

			if err := l.Accept(ctx, "officer@codelits.com"); err != nil {
				t.Fatalf("Accept() error = %v", err)
			}
			if err := l.Accept(ctx, "officer@codelits.com"); err != nil {
				t.Fatalf("second Accept() error = %v", err)
			}
			if ok, _ := l.Verify(ctx, "officer@codelits.com", "111111"); ok {
				t.Error("accepted invitation still verifies")
			}
			list, _ := l.List(ctx)
			if len(list) != 1 || list[0].Status != StatusAccepted || list[0].AcceptedAt == nil {
				t.Errorf("list = %+v", list)
			}
		})
	}
}

func TestLedger_ReinviteOverwrites(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := auth.WithSystem(context.Background())
			l := newLedger(newRepo(), mail.NewMemorySender(), "111111", "222222")

			_, _ = l.Invite(ctx, "officer@codelits.com")
			_ = l.Accept(ctx, "officer@codelits.com")
			_, _ = l.Invite(ctx, "officer@codelits.com")

			list, _ := l.List(ctx)
			if len(list) != 1 {
				t.Fatalf("entries = %d, want 1", len(list))
			}
			if list[0].Status != StatusPending {
				t.Errorf("status = %q, want pending after re-invite", list[0].Status)
			}
			if ok, _ := l.Verify(ctx, "officer@codelits.com", "111111"); ok {
				t.Error("first code still verifies")
			}
			if ok, _ := l.Verify(ctx, "officer@codelits.com", "222222"); !ok {
				t.Error("second code does not verify")
			}
		})
	}
}

func TestLedger_SendFailureKeepsEntry(t *testing.T) {
	ctx := auth.WithSystem(context.Background())
	sender := mail.NewMemorySender()
	sender.Fail(true)
	l := newLedger(NewMemoryRepository(), sender, "111111")

	inv, err := l.Invite(ctx, "officer@codelits.com")
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Invite() error = %v, want ErrSendFailed", err)
	}
	if inv.Email != "officer@codelits.com" {
		t.Errorf("returned invitation = %+v", inv)
	}
	if ok, _ := l.Verify(ctx, "officer@codelits.com", "111111"); !ok {
		t.Error("entry was rolled back")
	}
}

func TestLedger_AcceptMissing(t *testing.T) {
	l := newLedger(NewMemoryRepository(), mail.NewMemorySender())
	if err := l.Accept(context.Background(), "ghost@codelits.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Accept() = %v, want ErrNotFound", err)
	}
}

func TestDocRepository_RequiresAuth(t *testing.T) {
	repo := NewDocRepository(docstore.NewMemoryStore(nil))
	err := repo.Put(context.Background(), Invitation{Email: "a@b.com"})
	if !errors.Is(err, docstore.ErrUnauthenticated) {
		t.Errorf("Put() anonymous = %v, want ErrUnauthenticated", err)
	}
}

func TestHandler_Complete(t *testing.T) {
	ctx := auth.WithSystem(context.Background())
	p := auth.NewLocalProvider(auth.NewMemoryUsers(), auth.Config{PasswordHashAlgorithm: "bcrypt", BcryptCost: 4}, nil, nil)
	l := newLedger(NewDocRepository(docstore.NewMemoryStore(nil)), mail.NewMemorySender(), "123456")
	_, _ = l.Invite(ctx, "new@codelits.com")

	mgr := session.NewManager(p, session.Config{
		CookieName: "s",
		HashKey:    bytes.Repeat([]byte("h"), 32),
		BlockKey:   bytes.Repeat([]byte("b"), 32),
	}, session.Options{AdminEmail: "admin@codelits.com"})
	h := NewHandler(l, nil)
	srv := auth.Correlation(mgr.Middleware(http.HandlerFunc(h.Complete)))

	post := func(body CompleteRequest) int {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(body)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invitations/complete", &buf))
		return rec.Code
	}

	tests := []struct {
		name string
		body CompleteRequest
		want int
	}{
		{"wrong code", CompleteRequest{Email: "new@codelits.com", Code: "000000", Password: "longenough"}, http.StatusBadRequest},
		{"uninvited email", CompleteRequest{Email: "x@codelits.com", Code: "123456", Password: "longenough"}, http.StatusBadRequest},
		{"weak password", CompleteRequest{Email: "new@codelits.com", Code: "123456", Password: "short"}, http.StatusBadRequest},
		{"valid", CompleteRequest{Email: "new@codelits.com", Code: "123456", Password: "longenough"}, http.StatusCreated},
		{"replay", CompleteRequest{Email: "new@codelits.com", Code: "123456", Password: "longenough"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := post(tt.body); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, got, tt.want)
		}
	}

	if _, err := p.SignIn(context.Background(), "new@codelits.com", "longenough"); err != nil {
		t.Errorf("registered officer cannot sign in: %v", err)
	}
}
