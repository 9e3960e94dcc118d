package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

const defaultSubject = "Published on blockpress"

// sendMail is replaced in tests.
var sendMail = smtp.SendMail

// EmailOutput mails announcements over SMTP.
type EmailOutput struct {
	to       string
	from     string
	subject  string
	smtpHost string
	smtpPort string
	username string
	password string
}

// NewEmailOutput creates an email output configured from SMTP_HOST,
// SMTP_PORT (default 587), SMTP_USER, SMTP_PASS and SMTP_FROM.
func NewEmailOutput(to, subject string) (*EmailOutput, error) {
	return NewEmailOutputWithConfig(to, os.Getenv("SMTP_FROM"), subject,
		os.Getenv("SMTP_HOST"), os.Getenv("SMTP_PORT"),
		os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASS"))
}

// NewEmailOutputWithConfig creates an email output with explicit settings.
func NewEmailOutputWithConfig(to, from, subject, smtpHost, smtpPort, username, password string) (*EmailOutput, error) {
	if to == "" {
		return nil, fmt.Errorf("email recipient (to) is required")
	}
	if from == "" {
		return nil, fmt.Errorf("sender email (from) is required; set SMTP_FROM")
	}
	if smtpHost == "" {
		return nil, fmt.Errorf("SMTP host is required; set SMTP_HOST")
	}
	if smtpPort == "" {
		smtpPort = "587"
	}
	if subject == "" {
		subject = defaultSubject
	}
	return &EmailOutput{
		to:       to,
		from:     from,
		subject:  subject,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
	}, nil
}

// Name returns "email".
func (e *EmailOutput) Name() string { return "email" }

// To returns the configured recipient address.
func (e *EmailOutput) To() string { return e.to }

// Subject returns the configured subject line.
func (e *EmailOutput) Subject() string { return e.subject }

// Compose builds the RFC 822 message for ev.
func (e *EmailOutput) Compose(ev Event) []byte {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", e.to)
	fmt.Fprintf(&msg, "Subject: %s: %s\r\n", e.subject, ev.Title)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(ev.Message())
	msg.WriteString("\r\n")
	return []byte(msg.String())
}

// Send mails the announcement. smtp.SendMail has no context support, so ctx
// is only checked before sending.
func (e *EmailOutput) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}
	if err := sendMail(e.smtpHost+":"+e.smtpPort, auth, e.from, []string{e.to}, e.Compose(ev)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Close is a no-op for email output.
func (e *EmailOutput) Close() error { return nil }
