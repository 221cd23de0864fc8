package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSink delivers notifications through a plain SMTP relay. The message
// is sent on a goroutine so the caller's context deadline is honored even
// though net/smtp has no context support.
type SMTPSink struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTPSink(cfg SMTPConfig) *SMTPSink {
	return &SMTPSink{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *SMTPSink) SendResetLink(ctx context.Context, to, link string) error {
	body := "We received a request to reset your password.\r\n\r\n" +
		"Open the link below to choose a new one. It expires soon and can be used once.\r\n\r\n" +
		link + "\r\n\r\n" +
		"If you did not ask for this, you can ignore this message.\r\n"
	return s.deliver(ctx, to, "Reset your password", body)
}

func (s *SMTPSink) SendResetSecretNotice(ctx context.Context, to, secret string) error {
	body := "An administrator reset your password.\r\n\r\n" +
		"Your new password is: " + secret + "\r\n\r\n" +
		"Please change it after signing in.\r\n"
	return s.deliver(ctx, to, "Your password was reset", body)
}

func (s *SMTPSink) deliver(ctx context.Context, to, subject, body string) error {
	if err := validateHeaderValue(to); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := s.buildMessage(to, subject, body)

	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, []string{to}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (s *SMTPSink) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func validateHeaderValue(v string) error {
	if v == "" || strings.ContainsAny(v, "\r\n") {
		return fmt.Errorf("invalid recipient %q", v)
	}
	return nil
}
