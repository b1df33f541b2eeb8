package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
	codeInvalidTextRep       = "22P02"
)

// classify maps driver errors onto the storage sentinels while keeping the original error in the
// chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable:
			return fmt.Errorf("%w: %w", storage.ErrLockTimeout, err)
		case codeDeadlockDetected, codeSerializationFailure:
			return fmt.Errorf("%w: %w", storage.ErrTransient, err)
		case codeCheckViolation:
			if pgErr.ConstraintName == "availability_slots_booked_check" {
				return fmt.Errorf("%w: %w", storage.ErrCapacity, err)
			}
		case codeForeignKeyViolation:
			switch pgErr.ConstraintName {
			case "appointments_service_id_fkey", "availability_slots_service_id_fkey":
				return fmt.Errorf("%w: %w", storage.ErrUnknownService, err)
			}
		case codeInvalidTextRep:
			// A malformed uuid can never match a row.
			return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", storage.ErrTransient, err)
	}
	return err
}
