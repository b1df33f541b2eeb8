package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

const slotColumns = `id::text, stylist_id::text, COALESCE(service_id::text, ''), start_time, end_time, capacity, booked, created_at`

func scanSlot(row pgx.Row) (model.Slot, error) {
	var s model.Slot
	err := row.Scan(&s.ID, &s.StylistID, &s.ServiceID, &s.StartTime, &s.EndTime, &s.Capacity, &s.Booked, &s.CreatedAt)
	return s, err
}

type slotTx struct {
	tx pgx.Tx
}

func (s slotTx) WithLock(ctx context.Context, slotID string, fn func(model.Slot) error) error {
	slot, err := scanSlot(s.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
		FOR UPDATE
	`, slotID))
	if err != nil {
		return classify(err)
	}
	return fn(slot)
}

func (s slotTx) IncrementBooked(ctx context.Context, slotID string) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE availability_slots
		SET booked = booked + 1, updated_at = now()
		WHERE id = $1 AND booked < capacity
	`, slotID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot %s: %w", slotID, storage.ErrCapacity)
	}
	return nil
}

func (s slotTx) DecrementBooked(ctx context.Context, slotID string) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE availability_slots
		SET booked = GREATEST(booked - 1, 0), updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}
	return nil
}

func (s slotTx) Delete(ctx context.Context, slotID string) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1 AND booked = 0`, slotID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (model.Slot, error) {
	slot, err := scanSlot(s.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM availability_slots WHERE id = $1`, id))
	if err != nil {
		return model.Slot{}, classify(err)
	}
	return slot, nil
}

// ListSlots is a plain read; results may be stale by the time a reservation locks the row.
func (s *Store) ListSlots(ctx context.Context, f storage.SlotFilter) ([]model.Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE start_time >= $1
			AND start_time < $2
			AND ($3::text = '' OR stylist_id::text = $3)
			AND ($4::text = '' OR service_id IS NULL OR service_id::text = $4)
			AND ($5 OR booked < capacity)
		ORDER BY start_time ASC, id ASC
	`, f.From, f.To, f.StylistID, f.ServiceID, f.IncludeFull)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, classify(err)
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, classify(rows.Err())
	}
	return slots, nil
}

func (s *Store) CreateSlots(ctx context.Context, slots []model.Slot) ([]model.Slot, error) {
	created := make([]model.Slot, 0, len(slots))
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		created = created[:0]
		for _, in := range slots {
			slot, err := scanSlot(tx.QueryRow(ctx, `
				INSERT INTO availability_slots (stylist_id, service_id, start_time, end_time, capacity, booked)
				VALUES ($1, $2, $3, $4, $5, 0)
				RETURNING `+slotColumns,
				in.StylistID, nullIfEmpty(in.ServiceID), in.StartTime, in.EndTime, in.Capacity))
			if err != nil {
				return classify(err)
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) ServicePrice(ctx context.Context, serviceID string) (int64, error) {
	var cents int64
	err := s.pool.QueryRow(ctx, `SELECT price_cents FROM services WHERE id = $1`, serviceID).Scan(&cents)
	if err != nil {
		return 0, classify(err)
	}
	return cents, nil
}
