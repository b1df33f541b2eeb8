package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/outbox"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

type tx struct {
	s    *Store
	held map[string]chan struct{}

	slots        map[string]model.Slot
	deletedSlots map[string]bool
	appts        map[string]model.Appointment
	events       []outbox.Event
}

func (t *tx) Slots() storage.SlotStore     { return slotTx{t} }
func (t *tx) Appointments() storage.Ledger { return ledgerTx{t} }
func (t *tx) Events() storage.EventLog     { return eventTx{t} }

func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch, err := t.s.acquire(ctx, key)
	if err != nil {
		return err
	}
	t.held[key] = ch
	return nil
}

func (t *tx) release() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id := range t.deletedSlots {
		delete(t.s.slots, id)
	}
	for id, slot := range t.slots {
		t.s.slots[id] = slot
	}
	for id, a := range t.appts {
		t.s.appts[id] = a
	}
	t.s.events = append(t.s.events, t.events...)
}

func (t *tx) slot(id string) (model.Slot, bool) {
	if t.deletedSlots[id] {
		return model.Slot{}, false
	}
	if slot, ok := t.slots[id]; ok {
		return slot, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	slot, ok := t.s.slots[id]
	return slot, ok
}

func (t *tx) appt(id string) (model.Appointment, bool) {
	if a, ok := t.appts[id]; ok {
		return a, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.appts[id]
	return a, ok
}

func slotKey(id string) string { return "slot:" + id }
func apptKey(id string) string { return "appointment:" + id }

type slotTx struct{ t *tx }

func (s slotTx) locked(ctx context.Context, op Op, id string) (model.Slot, error) {
	if err := s.t.s.fault(op); err != nil {
		return model.Slot{}, err
	}
	if err := s.t.lock(ctx, slotKey(id)); err != nil {
		return model.Slot{}, err
	}
	slot, ok := s.t.slot(id)
	if !ok {
		return model.Slot{}, fmt.Errorf("slot %s: %w", id, storage.ErrNotFound)
	}
	return slot, nil
}

func (s slotTx) WithLock(ctx context.Context, slotID string, fn func(model.Slot) error) error {
	slot, err := s.locked(ctx, OpLockSlot, slotID)
	if err != nil {
		return err
	}
	return fn(slot)
}

func (s slotTx) IncrementBooked(ctx context.Context, slotID string) error {
	slot, err := s.locked(ctx, OpIncrement, slotID)
	if err != nil {
		return err
	}
	if slot.Booked >= slot.Capacity {
		return fmt.Errorf("slot %s: %w", slotID, storage.ErrCapacity)
	}
	slot.Booked++
	s.t.slots[slotID] = slot
	return nil
}

func (s slotTx) DecrementBooked(ctx context.Context, slotID string) error {
	slot, err := s.locked(ctx, OpDecrement, slotID)
	if err != nil {
		return err
	}
	if slot.Booked > 0 {
		slot.Booked--
	}
	s.t.slots[slotID] = slot
	return nil
}

func (s slotTx) Delete(ctx context.Context, slotID string) error {
	slot, err := s.locked(ctx, OpDeleteSlot, slotID)
	if err != nil {
		return err
	}
	if slot.Booked > 0 {
		return fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}
	delete(s.t.slots, slotID)
	s.t.deletedSlots[slotID] = true
	return nil
}

type ledgerTx struct{ t *tx }

func (l ledgerTx) Insert(ctx context.Context, a model.Appointment) (string, error) {
	if err := l.t.s.fault(OpInsert); err != nil {
		return "", err
	}
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.t.s.now()
	}
	a.UpdatedAt = a.CreatedAt
	if err := l.t.lock(ctx, apptKey(a.ID)); err != nil {
		return "", err
	}
	l.t.appts[a.ID] = a
	return a.ID, nil
}

func (l ledgerTx) locked(ctx context.Context, op Op, id string) (model.Appointment, error) {
	if err := l.t.s.fault(op); err != nil {
		return model.Appointment{}, err
	}
	if err := l.t.lock(ctx, apptKey(id)); err != nil {
		return model.Appointment{}, err
	}
	a, ok := l.t.appt(id)
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (l ledgerTx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return l.locked(ctx, OpGetForUpdate, id)
}

func (l ledgerTx) MarkCancelled(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	a, err := l.locked(ctx, OpMarkCancelled, id)
	if err != nil {
		return false, err
	}
	if a.Status == model.StatusCancelled {
		return false, nil
	}
	cancelledAt := at
	a.Status = model.StatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &cancelledAt
	a.UpdatedAt = at
	l.t.appts[id] = a
	return true, nil
}

func (l ledgerTx) SetStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (bool, error) {
	a, err := l.locked(ctx, OpSetStatus, id)
	if err != nil {
		return false, err
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = at
	l.t.appts[id] = a
	return true, nil
}

type eventTx struct{ t *tx }

func (e eventTx) Append(_ context.Context, evt outbox.Event) error {
	if err := e.t.s.fault(OpAppendEvent); err != nil {
		return err
	}
	e.t.events = append(e.t.events, evt)
	return nil
}
