package mail

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// A stalled provider must not block the caller for longer than this.
const sendTimeout = 5 * time.Second

type SMTP struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTP(host string, port int, username, password, from string) *SMTP {
	return &SMTP{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (s *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	const op = "mail.SMTP.Send"

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(s.host, s.port, s.username, s.password)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	// gomail has no deadline of its own, so run the exchange in a goroutine
	// and give up once the context expires.
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
