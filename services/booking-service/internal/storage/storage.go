// Package storage defines the persistence contracts of the booking service. Implementations live
// in the postgres and memstore subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout reports that a row lock could not be acquired within the configured wait.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrTransient covers deadlocks, serialization failures and dropped connections. The whole
	// transaction may be retried.
	ErrTransient = errors.New("transient storage failure")
	// ErrCapacity reports a conditional increment refused because the slot is full.
	ErrCapacity = errors.New("slot capacity exhausted")
	// ErrUnknownService reports a write naming a service that does not exist.
	ErrUnknownService = errors.New("unknown service")
)

// TxRunner runs fn inside one transaction. A nil return commits; any error rolls back every write
// made through tx and is returned unchanged.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Slots() SlotStore
	Appointments() Ledger
	Events() EventLog
}

// SlotStore is the transactional view of availability slots.
type SlotStore interface {
	// WithLock takes the slot's exclusive lock, held until the transaction ends, and calls fn with
	// the locked row. Returns ErrNotFound when the slot does not exist.
	WithLock(ctx context.Context, slotID string, fn func(model.Slot) error) error
	// IncrementBooked requires booked < capacity and returns ErrCapacity otherwise.
	IncrementBooked(ctx context.Context, slotID string) error
	// DecrementBooked floors booked at zero.
	DecrementBooked(ctx context.Context, slotID string) error
	Delete(ctx context.Context, slotID string) error
}

// Ledger is the transactional view of appointments.
type Ledger interface {
	Insert(ctx context.Context, appt model.Appointment) (string, error)
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// MarkCancelled reports whether the row changed. An already cancelled row is left untouched.
	MarkCancelled(ctx context.Context, id, reason string, at time.Time) (bool, error)
	// SetStatus moves id from one status to another, reporting false when the row was not in from.
	SetStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (bool, error)
}

type EventLog interface {
	Append(ctx context.Context, evt outbox.Event) error
}

type SlotFilter struct {
	// From and To bound start_time as [From, To).
	From        time.Time
	To          time.Time
	StylistID   string
	ServiceID   string
	IncludeFull bool
}

// Store combines the transaction runner with lock-free reads.
type Store interface {
	TxRunner
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	GetSlot(ctx context.Context, id string) (model.Slot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]model.Slot, error)
	CreateSlots(ctx context.Context, slots []model.Slot) ([]model.Slot, error)
	// ListStalePending returns ids of pending_deposit appointments created before cutoff, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ServicePrice(ctx context.Context, serviceID string) (int64, error)
}

// Retryable reports whether err is worth retrying the whole transaction for.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrLockTimeout)
}
