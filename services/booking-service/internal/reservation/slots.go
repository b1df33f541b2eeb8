package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/availability"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

const maxGeneratedSlots = 96

// ListAvailable returns the day's slots with remaining capacity. It takes no locks, so a listed
// slot may be full by the time it is booked.
func (s *Service) ListAvailable(ctx context.Context, q AvailabilityQuery) ([]model.Slot, error) {
	day, err := parseDay("date", q.Date, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	q.StylistID = strings.TrimSpace(q.StylistID)
	q.ServiceID = strings.TrimSpace(q.ServiceID)
	if err := optionalUUID("stylistId", q.StylistID); err != nil {
		return nil, err
	}
	if err := optionalUUID("serviceId", q.ServiceID); err != nil {
		return nil, err
	}
	return s.store.ListSlots(ctx, storage.SlotFilter{
		From:      day,
		To:        day.AddDate(0, 0, 1),
		StylistID: q.StylistID,
		ServiceID: q.ServiceID,
	})
}

func (s *Service) CreateSlot(ctx context.Context, in SlotInput) (model.Slot, error) {
	if err := in.Validate(); err != nil {
		return model.Slot{}, err
	}
	created, err := s.store.CreateSlots(ctx, []model.Slot{{
		StylistID: in.StylistID,
		ServiceID: in.ServiceID,
		StartTime: in.StartTime.UTC(),
		EndTime:   in.EndTime.UTC(),
		Capacity:  in.Capacity,
	}})
	if err != nil {
		return model.Slot{}, translate(err, "service", in.ServiceID)
	}
	s.logger.InfoContext(ctx, "slot created", "slot_id", created[0].ID, "stylist_id", in.StylistID)
	return created[0], nil
}

// GenerateSlots creates back-to-back slots over a working window, skipping times that overlap
// the stylist's existing slots or lie in the past.
func (s *Service) GenerateSlots(ctx context.Context, req GenerateRequest) ([]model.Slot, error) {
	plan, err := s.planFor(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListSlots(ctx, storage.SlotFilter{
		From:        plan.Start.Add(-24 * time.Hour),
		To:          plan.End,
		StylistID:   req.StylistID,
		IncludeFull: true,
	})
	if err != nil {
		return nil, err
	}
	taken := make([]availability.Interval, 0, len(existing))
	for _, slot := range existing {
		taken = append(taken, availability.Interval{Start: slot.StartTime, End: slot.EndTime})
	}

	intervals := availability.Layout(plan, taken, s.now())
	if len(intervals) == 0 {
		return []model.Slot{}, nil
	}
	if len(intervals) > maxGeneratedSlots {
		return nil, invalid("durationMinutes", fmt.Sprintf("window would create more than %d slots", maxGeneratedSlots))
	}

	slots := make([]model.Slot, 0, len(intervals))
	for _, iv := range intervals {
		slots = append(slots, model.Slot{
			StylistID: req.StylistID,
			ServiceID: req.ServiceID,
			StartTime: iv.Start.UTC(),
			EndTime:   iv.End.UTC(),
			Capacity:  req.Capacity,
		})
	}
	created, err := s.store.CreateSlots(ctx, slots)
	if err != nil {
		return nil, translate(err, "service", req.ServiceID)
	}
	s.logger.InfoContext(ctx, "slots generated", "stylist_id", req.StylistID, "date", req.Date, "count", len(created))
	return created, nil
}

func (s *Service) planFor(req GenerateRequest) (availability.Plan, error) {
	if err := requireUUID("stylistId", req.StylistID); err != nil {
		return availability.Plan{}, err
	}
	if err := optionalUUID("serviceId", req.ServiceID); err != nil {
		return availability.Plan{}, err
	}
	day, err := parseDay("date", req.Date, s.cfg.Location)
	if err != nil {
		return availability.Plan{}, err
	}
	opens, err := parseClock("opensAt", req.OpensAt)
	if err != nil {
		return availability.Plan{}, err
	}
	closes, err := parseClock("closesAt", req.ClosesAt)
	if err != nil {
		return availability.Plan{}, err
	}
	if closes.minutes() <= opens.minutes() {
		return availability.Plan{}, invalid("closesAt", "must be after opensAt")
	}
	if req.DurationMinutes <= 0 {
		return availability.Plan{}, invalid("durationMinutes", "must be positive")
	}
	step := req.StepMinutes
	if step == 0 {
		step = req.DurationMinutes
	}
	if step < 0 {
		return availability.Plan{}, invalid("stepMinutes", "must be positive")
	}
	if req.Capacity < 1 || req.Capacity > maxCapacity {
		return availability.Plan{}, invalid("capacity", "must be between 1 and 50")
	}
	return availability.Plan{
		Start:    opens.on(day, s.cfg.Location),
		End:      closes.on(day, s.cfg.Location),
		Duration: time.Duration(req.DurationMinutes) * time.Minute,
		Step:     time.Duration(step) * time.Minute,
	}, nil
}

// DeleteSlot removes a slot nobody holds. The check runs under the slot lock so it cannot race a
// reservation.
func (s *Service) DeleteSlot(ctx context.Context, id string) error {
	if requireUUID("id", id) != nil {
		return fmt.Errorf("slot %s: %w", id, ErrNotFound)
	}
	err := s.retry(ctx, "delete_slot", func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.Slots().WithLock(ctx, id, func(slot model.Slot) error {
				if slot.Booked > 0 {
					return fmt.Errorf("slot %s has %d bookings: %w", id, slot.Booked, ErrSlotInUse)
				}
				return tx.Slots().Delete(ctx, id)
			})
		})
	})
	if err != nil {
		if errors.Is(err, ErrSlotInUse) {
			return err
		}
		return translate(err, "slot", id)
	}
	s.logger.InfoContext(ctx, "slot deleted", "slot_id", id)
	return nil
}
