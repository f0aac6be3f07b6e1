// Package notification renders templated messages and delivers them by email.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable notification template. Placeholders use
// {{key}} syntax.
type Template struct {
	ID      string
	Subject string
	Body    string
}

const TemplateWithdrawalProcessed = "withdrawal-processed"

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.RegisterTemplate(Template{
		ID:      TemplateWithdrawalProcessed,
		Subject: "Your withdrawal of {{currency}} {{amount}} has been processed",
		Body: "Hello Dr. {{doctor_name}},\n\n" +
			"Your withdrawal request #{{request_id}} for {{currency}} {{amount}} via {{payment_method}} " +
			"was processed on {{paid_at}}.\n\n" +
			"The amount has been deducted from your DocAvailable wallet.\n",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Notifier renders a template and hands it to an EmailSender.
type Notifier struct {
	templates *TemplateEngine
	email     EmailSender
}

func NewNotifier(templates *TemplateEngine, email EmailSender) *Notifier {
	return &Notifier{templates: templates, email: email}
}

// Notify sends the rendered template to recipient.
func (n *Notifier) Notify(ctx context.Context, templateID, recipient string, data map[string]string) error {
	if recipient == "" {
		return errors.New("notification recipient is empty")
	}
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	if err := n.email.SendEmail(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}

// LogSender writes emails to the log instead of delivering them. It is used
// when no SMTP host is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Msg("email delivery disabled, message logged only")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
	// Sent, when non-nil, receives every call after it is recorded.
	Sent chan EmailCall
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	call := EmailCall{To: to, Subject: subject, Body: body}
	m.mu.Lock()
	m.calls = append(m.calls, call)
	fail := m.ShouldFail
	m.mu.Unlock()

	if m.Sent != nil {
		m.Sent <- call
	}
	if fail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
