package auth

import (
	"context"
)

// Mail is an outgoing message
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers mail. Delivery itself lives outside this module.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// MailerFunc adapts a function to Mailer
type MailerFunc func(ctx context.Context, m Mail) error

func (f MailerFunc) Send(ctx context.Context, m Mail) error {
	return f(ctx, m)
}

// LogMailer writes mail to the logger instead of sending it
func LogMailer(logger Logger) Mailer {
	logger = normalizeLogger(logger)
	return MailerFunc(func(_ context.Context, m Mail) error {
		logger.Info("mail to=%s subject=%q\n%s", m.To, m.Subject, m.Body)
		return nil
	})
}
