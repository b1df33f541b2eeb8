package expiry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

type countRecorder struct{ total int }

func (c *countRecorder) Expired(n int) { c.total += n }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(store *memstore.Store, slot model.Slot, status model.Status, createdAt time.Time) model.Appointment {
	return store.PutAppointment(model.Appointment{
		SlotID:    slot.ID,
		StylistID: slot.StylistID,
		Customer:  model.Customer{Name: "Ada", Email: "ada@example.com"},
		Status:    status,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
}

func TestRunOnceExpiresOnlyStalePending(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memstore.New(memstore.WithClock(clock))
	svc := reservation.New(store, reservation.Config{}, reservation.WithClock(clock), reservation.WithLogger(quietLogger()))

	start := now.Add(72 * time.Hour)
	slot := store.PutSlot(model.Slot{StylistID: uuid.NewString(), StartTime: start, EndTime: start.Add(time.Hour), Capacity: 5, Booked: 4})
	old := now.Add(-48 * time.Hour)
	stale1 := seed(store, slot, model.StatusPendingDeposit, old)
	stale2 := seed(store, slot, model.StatusPendingDeposit, old.Add(time.Minute))
	fresh := seed(store, slot, model.StatusPendingDeposit, now.Add(-time.Hour))
	paid := seed(store, slot, model.StatusConfirmed, old)

	rec := &countRecorder{}
	sw := NewSweeper(svc, rec, quietLogger(), Config{TTL: 24 * time.Hour, Batch: 1})

	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, rec.total)

	for id, want := range map[string]model.Status{
		stale1.ID: model.StatusCancelled,
		stale2.ID: model.StatusCancelled,
		fresh.ID:  model.StatusPendingDeposit,
		paid.ID:   model.StatusConfirmed,
	} {
		got, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, want, got.Status, id)
	}

	got, err := store.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Booked)
	require.Equal(t, store.ActiveCount(slot.ID), got.Booked)

	n, err = sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	sw := NewSweeper(nil, nil, quietLogger(), Config{Schedule: "every now and then"})
	require.Error(t, sw.Start(context.Background()))
}

func TestStartStopsWithContext(t *testing.T) {
	store := memstore.New()
	svc := reservation.New(store, reservation.Config{}, reservation.WithLogger(quietLogger()))
	sw := NewSweeper(svc, nil, quietLogger(), Config{Schedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sw.Start(ctx))
	cancel()
	sw.Stop()
}
