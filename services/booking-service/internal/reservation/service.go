// Package reservation owns the appointment lifecycle: reserving capacity on a slot, cancelling,
// confirming, completing and expiring appointments. Every state change runs in one storage
// transaction together with its slot counter update and outbox event.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/joycewetu0805/wigvival/services/booking-service/reservation")

type Config struct {
	// MaxAttempts bounds how often a transaction is run when it fails transiently.
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
	// Location interprets calendar dates in availability queries.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 50 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

type Service struct {
	store   storage.Store
	cfg     Config
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store storage.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cfg:     cfg.withDefaults(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create reserves one unit of the slot's capacity and records a pending_deposit appointment.
// Either both happen or neither does.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "reservation.Create", trace.WithAttributes(
		attribute.String("slot.id", req.SlotID),
	))
	defer span.End()

	req = req.normalized()
	if err := req.Validate(); err != nil {
		s.metrics.Reservation(OutcomeInvalid)
		return model.Appointment{}, err
	}

	var created model.Appointment
	err := s.retry(ctx, "create", func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.Slots().WithLock(ctx, req.SlotID, func(slot model.Slot) error {
				if !slot.Accepts(req.ServiceID) {
					return invalid("serviceId", "slot is reserved for another service")
				}
				if slot.Full() {
					return fmt.Errorf("slot %s: %w", slot.ID, ErrSlotFull)
				}

				now := s.now().UTC()
				appt := model.Appointment{
					SlotID:    slot.ID,
					StylistID: slot.StylistID,
					ServiceID: req.ServiceID,
					Customer:  req.Customer,
					Status:    model.StatusPendingDeposit,
					StartTime: slot.StartTime,
					EndTime:   slot.EndTime,
					Notes:     req.Notes,
					CreatedAt: now,
					UpdatedAt: now,
				}
				id, err := tx.Appointments().Insert(ctx, appt)
				if err != nil {
					return err
				}
				appt.ID = id
				if err := tx.Slots().IncrementBooked(ctx, slot.ID); err != nil {
					return err
				}
				if err := tx.Events().Append(ctx, newEvent(EventBooked, appt, "", "")); err != nil {
					return err
				}
				created = appt
				return nil
			})
		})
	})
	if err != nil {
		err = translate(err, "slot", req.SlotID)
		s.metrics.Reservation(outcomeOf(err))
		s.traceError(span, err)
		return model.Appointment{}, err
	}

	s.metrics.Reservation(OutcomeCreated)
	span.SetAttributes(attribute.String("appointment.id", created.ID))
	s.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", created.ID,
		"slot_id", created.SlotID,
		"stylist_id", created.StylistID,
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	if requireUUID("id", id) != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, translate(err, "appointment", id)
	}
	return a, nil
}

// translate maps storage sentinels onto the service's error taxonomy.
func translate(err error, entity, id string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	case errors.Is(err, storage.ErrCapacity):
		return fmt.Errorf("slot %s: %w", id, ErrSlotFull)
	case errors.Is(err, storage.ErrUnknownService):
		return fmt.Errorf("service: %w", ErrNotFound)
	default:
		return err
	}
}

// traceError marks the span failed only for unexpected errors. Business rejections are expected
// outcomes and are recorded as attributes.
func (s *Service) traceError(span trace.Span, err error) {
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("reservation.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
