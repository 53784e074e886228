package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"stock-price-alerts/pkg/models"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink sends alerts over SMTP. STARTTLS is used when the server offers
// it. A rule's own address replaces the configured recipients; events with
// neither are skipped.
type EmailSink struct {
	addr     string
	from     string
	to       []string
	auth     smtp.Auth
	sendMail sendMailFunc
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("email sink needs host and sender")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &EmailSink{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:     cfg.From,
		to:       cfg.To,
		auth:     auth,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *EmailSink) Name() string {
	return "email"
}

func (s *EmailSink) Notify(ctx context.Context, event models.AlertEvent) error {
	to := s.to
	if event.Email != "" {
		to = []string{event.Email}
	}
	if len(to) == 0 {
		return nil
	}

	msg := buildMessage(s.from, to, Subject(event), FormatMessage(event))

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
