package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const expiryReason = "deposit not received in time"

// Cancel releases the appointment's slot capacity exactly once. Cancelling an already cancelled
// appointment succeeds without side effects; a completed one fails with ErrInvalidState.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "reservation.Cancel", trace.WithAttributes(
		attribute.String("appointment.id", id),
	))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReason {
		return model.Appointment{}, invalid("reason", "is too long")
	}
	if requireUUID("id", id) != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}

	appt, _, err := s.release(ctx, id, reason, false)
	if err != nil {
		s.traceError(span, err)
		return model.Appointment{}, err
	}
	return appt, nil
}

// Expire cancels id only if it is still pending_deposit. It reports whether anything changed.
func (s *Service) Expire(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "reservation.Expire", trace.WithAttributes(
		attribute.String("appointment.id", id),
	))
	defer span.End()

	_, changed, err := s.release(ctx, id, expiryReason, true)
	if err != nil {
		s.traceError(span, err)
	}
	return changed, err
}

// ExpireStale expires up to limit pending_deposit appointments older than ttl and returns how many
// were expired. A failure on one appointment is logged and does not stop the sweep.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	cutoff := s.now().UTC().Add(-ttl)
	ids, err := s.store.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		changed, err := s.Expire(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "expire appointment failed", "appointment_id", id, "err", err)
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) release(ctx context.Context, id, reason string, onlyPending bool) (model.Appointment, bool, error) {
	op, eventType := "cancel", EventCancelled
	if onlyPending {
		op, eventType = "expire", EventExpired
	}

	var (
		result  model.Appointment
		from    model.Status
		changed bool
	)
	err := s.retry(ctx, op, func() error {
		changed = false
		return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			a, err := tx.Appointments().GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			result = a
			if a.Status == model.StatusCancelled {
				return nil
			}
			if onlyPending && a.Status != model.StatusPendingDeposit {
				return nil
			}
			if !model.CanTransition(a.Status, model.StatusCancelled) {
				return fmt.Errorf("appointment %s is %s: %w", id, a.Status, ErrInvalidState)
			}

			now := s.now().UTC()
			ok, err := tx.Appointments().MarkCancelled(ctx, id, reason, now)
			if err != nil || !ok {
				return err
			}
			if a.SlotID != "" {
				err := tx.Slots().WithLock(ctx, a.SlotID, func(model.Slot) error {
					return tx.Slots().DecrementBooked(ctx, a.SlotID)
				})
				if err != nil {
					return err
				}
			}

			from = a.Status
			a.Status = model.StatusCancelled
			a.CancelReason = reason
			a.CancelledAt = &now
			a.UpdatedAt = now
			if err := tx.Events().Append(ctx, newEvent(eventType, a, from, reason)); err != nil {
				return err
			}
			result = a
			changed = true
			return nil
		})
	})
	if err != nil {
		return model.Appointment{}, false, translate(err, "appointment", id)
	}

	if changed {
		s.metrics.Transition(from, model.StatusCancelled)
		s.logger.InfoContext(ctx, "appointment cancelled",
			"appointment_id", id,
			"slot_id", result.SlotID,
			"previous_status", string(from),
			"expired", onlyPending,
		)
	}
	return result, changed, nil
}

// Confirm moves a pending_deposit appointment to confirmed. Confirming a confirmed appointment is
// a no-op.
func (s *Service) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	return s.advance(ctx, id, model.StatusConfirmed, EventConfirmed)
}

// Complete moves a confirmed appointment to completed. Completing a completed appointment is a
// no-op.
func (s *Service) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return s.advance(ctx, id, model.StatusCompleted, EventCompleted)
}

func (s *Service) advance(ctx context.Context, id string, to model.Status, eventType string) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "reservation.Advance", trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("appointment.status", string(to)),
	))
	defer span.End()

	if requireUUID("id", id) != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}

	var (
		result  model.Appointment
		from    model.Status
		changed bool
	)
	err := s.retry(ctx, string(to), func() error {
		changed = false
		return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			a, err := tx.Appointments().GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			result = a
			if a.Status == to {
				return nil
			}
			if !model.CanTransition(a.Status, to) {
				return fmt.Errorf("appointment %s cannot move from %s to %s: %w", id, a.Status, to, ErrInvalidState)
			}

			now := s.now().UTC()
			ok, err := tx.Appointments().SetStatus(ctx, id, a.Status, to, now)
			if err != nil || !ok {
				return err
			}
			from = a.Status
			a.Status = to
			a.UpdatedAt = now
			if err := tx.Events().Append(ctx, newEvent(eventType, a, from, "")); err != nil {
				return err
			}
			result = a
			changed = true
			return nil
		})
	})
	if err != nil {
		err = translate(err, "appointment", id)
		s.traceError(span, err)
		return model.Appointment{}, err
	}

	if changed {
		s.metrics.Transition(from, to)
		s.logger.InfoContext(ctx, "appointment status changed",
			"appointment_id", id,
			"from", string(from),
			"to", string(to),
		)
	}
	return result, nil
}
