package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
)

// SMTPSender delivers notifications over authenticated SMTP.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
	to   []string

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns nil when the config carries no credentials, which
// the notifier treats as log-only mode.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	if cfg.Host == "" || cfg.User == "" || cfg.To == "" {
		return nil
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host),
		from: cfg.User,
		to:   strings.Split(cfg.To, ","),
		send: smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, strings.Join(s.to, ","), subject, body)
	return s.send(s.addr, s.auth, s.from, s.to, []byte(msg))
}
