package reservation

import (
	"errors"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
)

const (
	OutcomeCreated  = "created"
	OutcomeSlotFull = "slot_full"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeBusy     = "busy"
	OutcomeError    = "error"
)

// Recorder receives reservation telemetry. Implementations must be safe for concurrent use.
type Recorder interface {
	Reservation(outcome string)
	Transition(from, to model.Status)
	Retry(op string)
}

type nopRecorder struct{}

func (nopRecorder) Reservation(string)                   {}
func (nopRecorder) Transition(model.Status, model.Status) {}
func (nopRecorder) Retry(string)                         {}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCreated
	case errors.Is(err, ErrSlotFull):
		return OutcomeSlotFull
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case IsValidation(err), errors.Is(err, ErrInvalidState), errors.Is(err, ErrSlotInUse):
		return OutcomeInvalid
	case errors.Is(err, ErrBusy):
		return OutcomeBusy
	default:
		return OutcomeError
	}
}
