package reservation

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

func TestListAvailable(t *testing.T) {
	f := newFixture(t)
	open := f.slot(2, 1)
	f.slot(1, 1)

	got, err := f.svc.ListAvailable(context.Background(), AvailabilityQuery{Date: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, open.ID, got[0].ID)
	require.Equal(t, 1, got[0].Remaining())

	got, err = f.svc.ListAvailable(context.Background(), AvailabilityQuery{Date: "2026-03-03"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListAvailableValidation(t *testing.T) {
	f := newFixture(t)
	for _, q := range []AvailabilityQuery{
		{},
		{Date: "02/03/2026"},
		{Date: "2026-03-02", StylistID: "bob"},
	} {
		_, err := f.svc.ListAvailable(context.Background(), q)
		require.True(t, IsValidation(err), "query %+v: got %v", q, err)
	}
}

func TestCreateSlot(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	in := SlotInput{StylistID: uuid.NewString(), StartTime: start, EndTime: start.Add(time.Hour), Capacity: 2}

	slot, err := f.svc.CreateSlot(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, slot.ID)
	require.Zero(t, slot.Booked)

	in.EndTime = start
	_, err = f.svc.CreateSlot(context.Background(), in)
	require.True(t, IsValidation(err))

	in.EndTime = start.Add(time.Hour)
	in.Capacity = 0
	_, err = f.svc.CreateSlot(context.Background(), in)
	require.True(t, IsValidation(err))
}

func TestGenerateSlotsSkipsExisting(t *testing.T) {
	f := newFixture(t)
	stylist := uuid.NewString()
	existingStart := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f.store.PutSlot(model.Slot{StylistID: stylist, StartTime: existingStart, EndTime: existingStart.Add(time.Hour), Capacity: 1})

	slots, err := f.svc.GenerateSlots(context.Background(), GenerateRequest{
		StylistID:       stylist,
		Date:            "2026-03-02",
		OpensAt:         "09:00",
		ClosesAt:        "13:00",
		DurationMinutes: 60,
		Capacity:        2,
	})
	require.NoError(t, err)

	var starts []string
	for _, s := range slots {
		starts = append(starts, s.StartTime.Format("15:04"))
		require.Equal(t, 2, s.Capacity)
	}
	require.Equal(t, []string{"09:00", "11:00", "12:00"}, starts)
}

func TestGenerateSlotsKeepsWallClockOnDSTChange(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	store := memstore.New(memstore.WithClock(func() time.Time { return testNow }))
	svc := New(store, Config{Location: paris}, WithClock(func() time.Time { return testNow }))

	// Clocks jump from 02:00 to 03:00 on 2026-03-29 in Paris.
	slots, err := svc.GenerateSlots(context.Background(), GenerateRequest{
		StylistID:       uuid.NewString(),
		Date:            "2026-03-29",
		OpensAt:         "09:00",
		ClosesAt:        "11:00",
		DurationMinutes: 60,
		Capacity:        1,
	})
	require.NoError(t, err)

	var starts []string
	for _, s := range slots {
		starts = append(starts, s.StartTime.In(paris).Format("2006-01-02 15:04"))
	}
	require.Equal(t, []string{"2026-03-29 09:00", "2026-03-29 10:00"}, starts)
	require.Equal(t, time.Date(2026, 3, 29, 7, 0, 0, 0, time.UTC), slots[0].StartTime)
}

func TestGenerateSlotsValidation(t *testing.T) {
	f := newFixture(t)
	base := GenerateRequest{
		StylistID:       uuid.NewString(),
		Date:            "2026-03-02",
		OpensAt:         "09:00",
		ClosesAt:        "17:00",
		DurationMinutes: 30,
		Capacity:        1,
	}
	cases := map[string]func(*GenerateRequest){
		"closing before opening": func(r *GenerateRequest) { r.ClosesAt = "08:00" },
		"bad clock":              func(r *GenerateRequest) { r.OpensAt = "9am" },
		"no duration":            func(r *GenerateRequest) { r.DurationMinutes = 0 },
		"too many slots":         func(r *GenerateRequest) { r.OpensAt, r.ClosesAt, r.DurationMinutes = "00:00", "23:59", 5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := f.svc.GenerateSlots(context.Background(), req)
			require.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestDeleteSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(2, 0)
	appt, err := f.svc.Create(ctx, f.request(slot.ID))
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteSlot(ctx, slot.ID), ErrSlotInUse)

	_, err = f.svc.Cancel(ctx, appt.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSlot(ctx, slot.ID))
	require.ErrorIs(t, f.svc.DeleteSlot(ctx, slot.ID), ErrNotFound)

	_, err = f.svc.Create(ctx, f.request(slot.ID))
	require.ErrorIs(t, err, ErrNotFound)
}
