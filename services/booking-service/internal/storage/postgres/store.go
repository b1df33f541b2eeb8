// Package postgres implements the booking storage contracts on PostgreSQL. Slot and appointment
// locks are native row locks (SELECT ... FOR UPDATE) bounded by a transaction-local lock_timeout.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joycewetu0805/wigvival/libs/db"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/outbox"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
)

type Store struct {
	pool        *db.Pool
	outbox      *outbox.Repository
	lockTimeout time.Duration
}

type Options struct {
	// LockTimeout bounds every row-lock wait inside a transaction. Zero leaves the server default.
	LockTimeout time.Duration
}

func New(pool *db.Pool, outboxRepo *outbox.Repository, opts Options) *Store {
	return &Store{pool: pool, outbox: outboxRepo, lockTimeout: opts.LockTimeout}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, outbox: s.outbox})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return classify(err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) Slots() storage.SlotStore     { return slotTx{tx: t.tx} }
func (t *pgTx) Appointments() storage.Ledger { return ledgerTx{tx: t.tx} }
func (t *pgTx) Events() storage.EventLog     { return eventTx{tx: t.tx, repo: t.outbox} }

type eventTx struct {
	tx   pgx.Tx
	repo *outbox.Repository
}

func (e eventTx) Append(ctx context.Context, evt outbox.Event) error {
	return classify(e.repo.Insert(ctx, e.tx, evt))
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
