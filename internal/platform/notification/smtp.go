package notification

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/go-gomail/gomail"
)

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// SMTPSender delivers email through an SMTP relay. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Port == 465
	return &SMTPSender{cfg: cfg, dialer: d}
}

// SendEmail sends a plain-text body with an HTML alternative.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.message(to, subject, body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	m.AddAlternative("text/html", textToHTML(body))
	return m
}

func textToHTML(body string) string {
	paragraphs := strings.Split(strings.TrimSpace(body), "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
