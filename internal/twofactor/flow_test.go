package twofactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/mail"
	"github.com/codelits/invoice-manager/internal/otp"
	"github.com/codelits/invoice-manager/internal/session"
)

const (
	adminEmail  = "admin@codelits.com"
	notifyEmail = "security@codelits.com"
	officer     = "officer@codelits.com"
	password    = "longenough"
)

type fixture struct {
	store  *session.Store
	sender *mail.MemorySender
	clock  *clock.Fake
	flow   *Flow
}

func setup(t *testing.T, email string, codes ...string) *fixture {
	t.Helper()
	return setupWith(t, email, session.NewMemoryStorage(), codes...)
}

func setupWith(t *testing.T, email string, storage session.Storage, codes ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	p := auth.NewLocalProvider(auth.NewMemoryUsers(), auth.Config{PasswordHashAlgorithm: "bcrypt", BcryptCost: 4}, nil, nil)
	if err := p.EnsureUser(ctx, email, password); err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	store := session.NewStore(p, storage, session.Options{AdminEmail: adminEmail})
	_ = store.Restore(ctx)
	if _, err := store.Login(ctx, email, password); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	clk := clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	sender := mail.NewMemorySender()
	flow := New(sender, Options{
		AdminNotifyEmail: notifyEmail,
		Clock:            clk,
		Codes:            otp.Sequence(codes...),
	})
	return &fixture{store: store, sender: sender, clock: clk, flow: flow}
}

func TestRequestCode_Targets(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"admin codes go to the notification address", adminEmail, notifyEmail},
		{"officer codes go to the officer", officer, officer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.email, "123456")
			res, err := f.flow.RequestCode(context.Background(), f.store)
			if err != nil {
				t.Fatalf("RequestCode() error = %v", err)
			}
			if !res.Sent || res.SentTo != tt.want {
				t.Errorf("result = %+v", res)
			}
			msg, _ := f.sender.Last()
			if msg.To != tt.want {
				t.Errorf("sent to %q, want %q", msg.To, tt.want)
			}
			if f.flow.Status(f.store) != StatusCodeSent {
				t.Errorf("status = %q", f.flow.Status(f.store))
			}
		})
	}
}

func TestRequestCode_Throttle(t *testing.T) {
	f := setup(t, officer, "111111", "222222")
	ctx := context.Background()

	if _, err := f.flow.RequestCode(ctx, f.store); err != nil {
		t.Fatalf("first RequestCode() error = %v", err)
	}
	f.clock.Advance(10*time.Second + 200*time.Millisecond)

	res, err := f.flow.RequestCode(ctx, f.store)
	if err != nil {
		t.Fatalf("second RequestCode() error = %v", err)
	}
	if !res.Throttled || res.Sent {
		t.Fatalf("result = %+v, want throttled", res)
	}
	if res.RemainingSeconds != 20 {
		t.Errorf("RemainingSeconds = %d, want 20", res.RemainingSeconds)
	}
	if f.sender.Calls() != 1 {
		t.Errorf("send calls = %d, want 1", f.sender.Calls())
	}

	f.clock.Advance(20 * time.Second)
	res, _ = f.flow.RequestCode(ctx, f.store)
	if !res.Sent || f.sender.Calls() != 2 {
		t.Errorf("send after window: result = %+v, calls = %d", res, f.sender.Calls())
	}
}

func TestRequestCode_NewCodeReplacesOld(t *testing.T) {
	f := setup(t, officer, "111111", "222222")
	ctx := context.Background()
	_, _ = f.flow.RequestCode(ctx, f.store)
	f.clock.Advance(DefaultThrottle)
	_, _ = f.flow.RequestCode(ctx, f.store)

	if err := f.flow.Verify(ctx, f.store, "111111"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("old code = %v, want ErrInvalidCode", err)
	}
	if err := f.flow.Verify(ctx, f.store, "222222"); err != nil {
		t.Fatalf("new code error = %v", err)
	}
}

func TestRequestCode_SendFailureLogsOut(t *testing.T) {
	f := setup(t, officer, "111111")
	f.sender.Fail(true)

	_, err := f.flow.RequestCode(context.Background(), f.store)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("RequestCode() error = %v, want ErrSendFailed", err)
	}
	if f.store.State().Authenticated() {
		t.Error("session survived a failed send")
	}
	if _, ok := f.store.Storage().Get(KeyLastSent); ok {
		t.Error("throttle timestamp kept after failed send")
	}
	if f.flow.Status(f.store) != StatusLoggedOut {
		t.Errorf("status = %q", f.flow.Status(f.store))
	}
}

func TestRequestCode_SendFailureRestoresTimestamp(t *testing.T) {
	storage := &opStorage{MemoryStorage: session.NewMemoryStorage()}
	f := setupWith(t, officer, storage, "111111", "222222")
	ctx := context.Background()

	_, _ = f.flow.RequestCode(ctx, f.store)
	first, _ := storage.Get(KeyLastSent)

	f.clock.Advance(DefaultThrottle)
	f.sender.Fail(true)
	storage.ops = nil
	if _, err := f.flow.RequestCode(ctx, f.store); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("RequestCode() error = %v", err)
	}

	// attempt timestamp, rollback to the previous one, then logout
	rollback := "set " + KeyLastSent + "=" + first
	if len(storage.ops) != 3 || storage.ops[0] == rollback || storage.ops[1] != rollback || storage.ops[2] != "clear" {
		t.Fatalf("ops = %v", storage.ops)
	}
}

// opStorage records writes so rollbacks can be observed after logout.
type opStorage struct {
	*session.MemoryStorage
	ops []string
}

func (s *opStorage) Set(key, value string) {
	if key == KeyLastSent {
		s.ops = append(s.ops, "set "+key+"="+value)
	}
	s.MemoryStorage.Set(key, value)
}

func (s *opStorage) Clear() {
	s.ops = append(s.ops, "clear")
	s.MemoryStorage.Clear()
}

func TestVerify(t *testing.T) {
	f := setup(t, officer, "004217")
	ctx := context.Background()

	if err := f.flow.Verify(ctx, f.store, "004217"); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("Verify() before send = %v, want ErrNoChallenge", err)
	}
	_, _ = f.flow.RequestCode(ctx, f.store)

	for i, wrong := range []string{"000000", "4217", "999999"} {
		if err := f.flow.Verify(ctx, f.store, wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidCode", wrong, err)
		}
		if f.flow.Status(f.store) != StatusCodeSent {
			t.Fatal("mismatch must leave the challenge active")
		}
		if got := f.flow.Attempts(f.store); got != i+1 {
			t.Errorf("Attempts() = %d, want %d", got, i+1)
		}
	}

	if err := f.flow.Verify(ctx, f.store, "004217"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !f.store.State().TwoFactorVerified {
		t.Fatal("session not verified")
	}
	if f.flow.Status(f.store) != StatusVerified {
		t.Errorf("status = %q", f.flow.Status(f.store))
	}
	for _, key := range []string{KeyCode, KeyLastSent, KeyAttempts} {
		if _, ok := f.store.Storage().Get(key); ok {
			t.Errorf("%s not cleared", key)
		}
	}
}

func TestEnter_AutoSendsOnce(t *testing.T) {
	f := setup(t, officer, "123456")
	ctx := context.Background()

	res, err := f.flow.Enter(ctx, f.store)
	if err != nil || !res.Sent {
		t.Fatalf("first Enter() = %+v, %v", res, err)
	}
	f.clock.Advance(time.Hour)
	if res, _ := f.flow.Enter(ctx, f.store); res.Sent {
		t.Error("second Enter() sent again")
	}
	if f.sender.Calls() != 1 {
		t.Errorf("send calls = %d, want 1", f.sender.Calls())
	}
}

func TestEnter_SkipsActiveChallenge(t *testing.T) {
	f := setup(t, officer, "123456")
	ctx := context.Background()
	_, _ = f.flow.RequestCode(ctx, f.store)
	f.clock.Advance(time.Hour)
	if res, _ := f.flow.Enter(ctx, f.store); res.Sent {
		t.Error("Enter() sent while a challenge was active")
	}
}

func TestFlow_RequiresIdentity(t *testing.T) {
	f := setup(t, officer)
	ctx := context.Background()
	_ = f.store.Logout(ctx)

	if _, err := f.flow.RequestCode(ctx, f.store); !errors.Is(err, session.ErrNoIdentity) {
		t.Errorf("RequestCode() = %v", err)
	}
	if _, err := f.flow.Enter(ctx, f.store); !errors.Is(err, session.ErrNoIdentity) {
		t.Errorf("Enter() = %v", err)
	}
	if err := f.flow.Verify(ctx, f.store, "123456"); !errors.Is(err, session.ErrNoIdentity) {
		t.Errorf("Verify() = %v", err)
	}
}

func TestLogoutClearsChallenge(t *testing.T) {
	f := setup(t, officer, "123456")
	ctx := context.Background()
	_, _ = f.flow.RequestCode(ctx, f.store)
	_ = f.store.Logout(ctx)
	for _, key := range []string{KeyCode, KeyLastSent, KeyAutoRequested} {
		if _, ok := f.store.Storage().Get(key); ok {
			t.Errorf("%s survived logout", key)
		}
	}
}
