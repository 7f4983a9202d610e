// Package mail is the email collaborator. Sending never returns an error
// to the caller; delivery failures are reported through Result.Success
// and logged here.
package mail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/resend/resend-go/v2"
)

// DefaultFrom is the sender used when MAIL_FROM is not configured.
const DefaultFrom = "Invoice Manager <onboarding@resend.dev>"

// Message is an outgoing email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Result reports whether the message was handed to the transport.
type Result struct {
	Success bool `json:"success"`
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

// emailsAPI is the subset of the Resend client used here.
type emailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	emails emailsAPI
	from   string
	logger *slog.Logger
}

// NewResendSender creates a sender authenticated with apiKey.
func NewResendSender(apiKey, from string, logger *slog.Logger) *ResendSender {
	if logger == nil {
		logger = slog.Default()
	}
	if from == "" {
		from = DefaultFrom
	}
	client := resend.NewClient(apiKey)
	return &ResendSender{emails: client.Emails, from: from, logger: logger}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) Result {
	sent, err := s.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
	})
	if err != nil {
		s.logger.Error("email send failed", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
		return Result{Success: false}
	}
	s.logger.Info("email sent", slog.String("subject", msg.Subject), slog.String("messageId", sent.Id))
	return Result{Success: true}
}

// LogSender only logs that a message would have been sent. The body is
// never logged since it carries one-time codes.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender for local development.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) Result {
	s.logger.Warn("email delivery disabled; message dropped",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return Result{Success: true}
}

// MemorySender records messages. Fail makes subsequent sends report
// failure.
type MemorySender struct {
	mu    sync.Mutex
	sent  []Message
	calls int
	fail  bool
}

// NewMemorySender creates an empty recorder.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (m *MemorySender) Send(_ context.Context, msg Message) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return Result{Success: false}
	}
	m.sent = append(m.sent, msg)
	return Result{Success: true}
}

// Fail toggles simulated transport failure.
func (m *MemorySender) Fail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

// Calls returns the number of Send invocations, failed ones included.
func (m *MemorySender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Sent returns a copy of delivered messages.
func (m *MemorySender) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Last returns the most recent message, if any.
func (m *MemorySender) Last() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}
