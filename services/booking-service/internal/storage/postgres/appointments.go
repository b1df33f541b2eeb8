package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
)

const appointmentColumns = `id::text, COALESCE(slot_id::text, ''), stylist_id::text, service_id::text,
	COALESCE(customer_id, ''), customer_name, COALESCE(customer_email, ''), COALESCE(customer_phone, ''),
	status, start_time, end_time, COALESCE(notes, ''), COALESCE(cancel_reason, ''), cancelled_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a           model.Appointment
		status      string
		cancelledAt *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.StylistID,
		&a.ServiceID,
		&a.Customer.ID,
		&a.Customer.Name,
		&a.Customer.Email,
		&a.Customer.Phone,
		&status,
		&a.StartTime,
		&a.EndTime,
		&a.Notes,
		&a.CancelReason,
		&cancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.CancelledAt = cancelledAt
	return a, nil
}

type ledgerTx struct {
	tx pgx.Tx
}

func (l ledgerTx) Insert(ctx context.Context, a model.Appointment) (string, error) {
	var id string
	err := l.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(slot_id, stylist_id, service_id, customer_id, customer_name, customer_email, customer_phone,
			 status, start_time, end_time, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id::text
	`, a.SlotID, a.StylistID, a.ServiceID, nullIfEmpty(a.Customer.ID), a.Customer.Name,
		nullIfEmpty(a.Customer.Email), nullIfEmpty(a.Customer.Phone), string(a.Status),
		a.StartTime, a.EndTime, nullIfEmpty(a.Notes), a.CreatedAt).Scan(&id)
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (l ledgerTx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(l.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return a, nil
}

func (l ledgerTx) MarkCancelled(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	tag, err := l.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancel_reason = $2,
			cancelled_at = $3,
			updated_at = $3
		WHERE id = $1 AND status <> 'cancelled'
	`, id, nullIfEmpty(reason), at)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l ledgerTx) SetStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (bool, error) {
	tag, err := l.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), at)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return a, nil
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text
		FROM appointments
		WHERE status = 'pending_deposit' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, classify(rows.Err())
	}
	return ids, nil
}
