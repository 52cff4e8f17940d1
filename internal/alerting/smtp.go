package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/uptix/hub/internal/models"
)

type SMTPSender struct {
	Host     string `toml:"host" json:"host"`
	Port     int    `toml:"port" json:"port"`
	Username string `toml:"username" json:"username"`
	Password string `toml:"password" json:"password"`
	From     string `toml:"from" json:"from"`
	To       string `toml:"to" json:"to"` // comma separated
	UseTLS   bool   `toml:"use_tls" json:"use_tls"`
}

func (s *SMTPSender) Name() string {
	return TransportSMTP
}

func (s *SMTPSender) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if s.From == "" {
		return fmt.Errorf("from address is required")
	}
	if len(s.recipients()) == 0 {
		return fmt.Errorf("to address is required")
	}
	return nil
}

func (s *SMTPSender) recipients() []string {
	var out []string
	for _, r := range strings.Split(s.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (s *SMTPSender) message(n models.Notification) []byte {
	return []byte(fmt.Sprintf("Subject: %s\r\nFrom: Uptix Alerts <%s>\r\nTo: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n\r\nFired at: %s\r\n",
		singleLine(n.Subject), s.From, strings.Join(s.recipients(), ", "), n.Body, n.FiredAt.Format("2006-01-02 15:04:05 UTC")))
}

// Send delivers n over implicit TLS when UseTLS is set or the port is 465,
// otherwise over plain SMTP upgraded with STARTTLS when the server offers it.
func (s *SMTPSender) Send(ctx context.Context, n models.Notification) error {
	addr := net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
	implicitTLS := s.UseTLS || s.Port == 465

	var conn net.Conn
	var err error
	if implicitTLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: s.Host}}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(time.Minute))
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if !implicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if s.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, rcpt := range s.recipients() {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(s.message(n)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}
