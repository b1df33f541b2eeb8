// Package deposit collects the partial payment that confirms a pending appointment.
package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

// ErrNotConfigured is returned when no payment provider is wired.
var ErrNotConfigured = errors.New("deposit payments not configured")

type AppointmentReader interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
}

type PriceLookup interface {
	ServicePrice(ctx context.Context, serviceID string) (int64, error)
}

type IntentRequest struct {
	AppointmentID string
	AmountCents   int64
	Currency      string
	Description   string
}

type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       string
}

type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

type Quote struct {
	AppointmentID string
	PriceCents    int64
	DepositCents  int64
	Percentage    int
	Currency      string
}

// Amount is percentage of price, rounded half up to the cent.
func Amount(priceCents int64, percentage int) int64 {
	if priceCents <= 0 || percentage <= 0 {
		return 0
	}
	return (priceCents*int64(percentage) + 50) / 100
}

type Service struct {
	appts      AppointmentReader
	prices     PriceLookup
	provider   Provider
	percentage int
	currency   string
}

type Config struct {
	Percentage int
	Currency   string
}

// NewService wires the deposit flow. provider may be nil, in which case quotes still work and
// Start returns ErrNotConfigured.
func NewService(appts AppointmentReader, prices PriceLookup, provider Provider, cfg Config) *Service {
	if cfg.Percentage <= 0 || cfg.Percentage > 100 {
		cfg.Percentage = 30
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Service{appts: appts, prices: prices, provider: provider, percentage: cfg.Percentage, currency: cfg.Currency}
}

func (s *Service) Quote(ctx context.Context, appointmentID string) (Quote, error) {
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, appt)
}

func (s *Service) quote(ctx context.Context, appt model.Appointment) (Quote, error) {
	price, err := s.prices.ServicePrice(ctx, appt.ServiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Quote{}, fmt.Errorf("service %s: %w", appt.ServiceID, reservation.ErrNotFound)
		}
		return Quote{}, err
	}
	return Quote{
		AppointmentID: appt.ID,
		PriceCents:    price,
		DepositCents:  Amount(price, s.percentage),
		Percentage:    s.percentage,
		Currency:      s.currency,
	}, nil
}

// Start opens a payment for the deposit of a pending_deposit appointment.
func (s *Service) Start(ctx context.Context, appointmentID string) (Quote, Intent, error) {
	if s.provider == nil {
		return Quote{}, Intent{}, ErrNotConfigured
	}
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return Quote{}, Intent{}, err
	}
	if appt.Status != model.StatusPendingDeposit {
		return Quote{}, Intent{}, fmt.Errorf("appointment %s is %s: %w", appt.ID, appt.Status, reservation.ErrInvalidState)
	}
	q, err := s.quote(ctx, appt)
	if err != nil {
		return Quote{}, Intent{}, err
	}
	if q.DepositCents <= 0 {
		return Quote{}, Intent{}, &reservation.ValidationError{Field: "serviceId", Reason: "service has no deposit to collect"}
	}
	intent, err := s.provider.CreateIntent(ctx, IntentRequest{
		AppointmentID: appt.ID,
		AmountCents:   q.DepositCents,
		Currency:      q.Currency,
		Description:   fmt.Sprintf("Deposit for appointment %s", appt.ID),
	})
	if err != nil {
		return Quote{}, Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return q, intent, nil
}
