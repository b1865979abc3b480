package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// EmailChannel sends a plain-text mail via net/smtp, grounded on the
// original's smtp() — stdlib is the correct choice here since the pack
// carries no third-party SMTP library and net/smtp is the idiomatic Go
// way to speak the protocol directly, matching the original's use of the
// bare smtplib rather than a templating/mailer framework.
type EmailChannel struct {
	cfg SMTPConfig
}

func NewEmailChannel(cfg SMTPConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, message string) error {
	auth := smtp.PlainAuth("", c.cfg.User, c.cfg.Pass, c.cfg.Host)
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	subject := "ticketbot notification"
	body := fmt.Sprintf("From: %s\r\nSubject: %s\r\n\r\n%s\r\n", c.cfg.Sender, subject, message)

	return smtp.SendMail(addr, auth, c.cfg.Sender, c.cfg.Receivers, []byte(body))
}
