// Package memstore is an in-memory implementation of the storage contracts. Row locks are
// per-key channels with a bounded wait, and writes are staged per transaction and applied on
// commit, so it behaves like the Postgres store under concurrency. Faults can be injected per
// operation.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/outbox"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

type Op string

const (
	OpLockSlot      Op = "slots.lock"
	OpIncrement     Op = "slots.increment"
	OpDecrement     Op = "slots.decrement"
	OpDeleteSlot    Op = "slots.delete"
	OpInsert        Op = "appointments.insert"
	OpGetForUpdate  Op = "appointments.get_for_update"
	OpMarkCancelled Op = "appointments.mark_cancelled"
	OpSetStatus     Op = "appointments.set_status"
	OpAppendEvent   Op = "events.append"
	OpCommit        Op = "commit"
)

type Store struct {
	lockTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	slots  map[string]model.Slot
	appts  map[string]model.Appointment
	prices map[string]int64
	events []outbox.Event
	locks  map[string]chan struct{}
	faults map[Op][]error
}

type Option func(*Store)

// WithLockTimeout bounds lock waits. Zero waits until the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		lockTimeout: 2 * time.Second,
		now:         time.Now,
		slots:       map[string]model.Slot{},
		appts:       map[string]model.Appointment{},
		prices:      map[string]int64{},
		locks:       map[string]chan struct{}{},
		faults:      map[Op][]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

// FailNext makes the next call of op return err. Calls queue up per op.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

func (s *Store) fault(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	s.faults[op] = queue[1:]
	return queue[0]
}

func (s *Store) lockChan(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, key string) (chan struct{}, error) {
	ch := s.lockChan(key)
	select {
	case ch <- struct{}{}:
		return ch, nil
	default:
	}

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case ch <- struct{}{}:
		return ch, nil
	case <-timeout:
		return nil, fmt.Errorf("%s: %w", key, storage.ErrLockTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	t := &tx{
		s:            s,
		held:         map[string]chan struct{}{},
		slots:        map[string]model.Slot{},
		deletedSlots: map[string]bool{},
		appts:        map[string]model.Appointment{},
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := s.fault(OpCommit); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) GetSlot(_ context.Context, id string) (model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.Slot{}, fmt.Errorf("slot %s: %w", id, storage.ErrNotFound)
	}
	return slot, nil
}

func (s *Store) ListSlots(_ context.Context, f storage.SlotFilter) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Slot
	for _, slot := range s.slots {
		if slot.StartTime.Before(f.From) || !slot.StartTime.Before(f.To) {
			continue
		}
		if f.StylistID != "" && slot.StylistID != f.StylistID {
			continue
		}
		if f.ServiceID != "" && !slot.Accepts(f.ServiceID) {
			continue
		}
		if !f.IncludeFull && slot.Full() {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateSlots(_ context.Context, slots []model.Slot) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := make([]model.Slot, 0, len(slots))
	for _, slot := range slots {
		slot.ID = uuid.NewString()
		slot.Booked = 0
		slot.CreatedAt = s.now()
		s.slots[slot.ID] = slot
		created = append(created, slot)
	}
	return created, nil
}

func (s *Store) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []model.Appointment
	for _, a := range s.appts {
		if a.Status == model.StatusPendingDeposit && a.CreatedAt.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]string, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (s *Store) ServicePrice(_ context.Context, serviceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cents, ok := s.prices[serviceID]
	if !ok {
		return 0, fmt.Errorf("service %s: %w", serviceID, storage.ErrNotFound)
	}
	return cents, nil
}

// PutSlot seeds a slot as-is, keeping its Booked value. A missing id is generated.
func (s *Store) PutSlot(slot model.Slot) model.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = s.now()
	}
	s.slots[slot.ID] = slot
	return slot
}

// PutAppointment seeds an appointment without touching any slot counter.
func (s *Store) PutAppointment(a model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.appts[a.ID] = a
	return a
}

func (s *Store) SetServicePrice(serviceID string, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[serviceID] = cents
}

// Appointments returns the committed appointments bound to slotID.
func (s *Store) Appointments(slotID string) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.SlotID == slotID {
			out = append(out, a)
		}
	}
	return out
}

// ActiveCount is the number of committed non-cancelled appointments bound to slotID.
func (s *Store) ActiveCount(slotID string) int {
	n := 0
	for _, a := range s.Appointments(slotID) {
		if a.Status.Active() {
			n++
		}
	}
	return n
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}
