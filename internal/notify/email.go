package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"wbautoslot/internal/domain"
)

// emailSender delivers over plain SMTP with optional AUTH. The host runs
// STARTTLS when it advertises it; smtp.SendMail handles the upgrade.
type emailSender struct {
	addr string
	from string
	auth smtp.Auth
	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newEmailSender(cfg EmailConfig) *emailSender {
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &emailSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, port),
		from:     cfg.From,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (e *emailSender) SendText(ctx context.Context, user domain.User, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(user.Email)
	if to == "" {
		return errors.New("user has no email address")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: WB AutoSlot - %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return e.sendMail(e.addr, e.auth, e.from, []string{to}, []byte(b.String()))
}
