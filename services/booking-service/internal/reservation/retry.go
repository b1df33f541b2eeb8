package reservation

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

// retry runs fn up to MaxAttempts times with exponential backoff while it fails with a retryable
// storage error. Anything else stops immediately. When the budget runs out the last error is
// returned wrapped in ErrBusy.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitial
	b.MaxInterval = s.cfg.RetryMax

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !storage.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if attempt < s.cfg.MaxAttempts {
			s.metrics.Retry(op)
			s.logger.WarnContext(ctx, "transaction failed, retrying",
				"op", op,
				"attempt", attempt,
				"err", err,
			)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.cfg.MaxAttempts)))

	if err != nil && storage.Retryable(err) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}
