package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sl "student_system/internal/lib/logger"
)

// Dispatcher delivers a single message. Implementations must be safe to
// retry: a failed attempt never leaves partial state behind.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Chain tries each backend in priority order and stops at the first success.
type Chain struct {
	log      *slog.Logger
	backends []Dispatcher
}

func NewChain(log *slog.Logger, backends ...Dispatcher) *Chain {
	return &Chain{log: log, backends: backends}
}

func (c *Chain) Send(ctx context.Context, to, subject, htmlBody string) error {
	const op = "mail.Chain.Send"

	if len(c.backends) == 0 {
		return fmt.Errorf("%s: no mail backends configured", op)
	}

	var errs []error

	for _, backend := range c.backends {
		err := backend.Send(ctx, to, subject, htmlBody)
		if err == nil {
			return nil
		}

		c.log.Warn("mail backend failed, trying next", slog.String("op", op), sl.Err(err))
		errs = append(errs, err)
	}

	return fmt.Errorf("%s: %w", op, errors.Join(errs...))
}
