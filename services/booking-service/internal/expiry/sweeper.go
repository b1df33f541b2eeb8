// Package expiry releases pending_deposit appointments whose deposit never arrived.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 5m"
	DefaultTTL      = 24 * time.Hour
	DefaultBatch    = 100
)

// Expirer is implemented by reservation.Service.
type Expirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

type Recorder interface {
	Expired(n int)
}

type Config struct {
	Schedule string
	TTL      time.Duration
	Batch    int
}

type Sweeper struct {
	expirer  Expirer
	metrics  Recorder
	logger   *slog.Logger
	schedule string
	ttl      time.Duration
	batch    int

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(expirer Expirer, metrics Recorder, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		expirer:  expirer,
		metrics:  metrics,
		logger:   logger,
		schedule: cfg.Schedule,
		ttl:      cfg.TTL,
		batch:    cfg.Batch,
	}
}

// RunOnce drains stale appointments batch by batch until a batch comes back short.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.expirer.ExpireStale(ctx, s.ttl, s.batch)
		total += n
		if n > 0 && s.metrics != nil {
			s.metrics.Expired(n)
		}
		if err != nil {
			return total, err
		}
		if n < s.batch {
			return total, nil
		}
	}
}

// Start schedules the sweep. Overlapping runs are skipped. The job stops when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(s.schedule, func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("expiry schedule %q: %w", s.schedule, err)
	}
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("pending deposit expiry scheduled", "schedule", s.schedule, "ttl", s.ttl.String())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *Sweeper) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	n, err := s.RunOnce(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "pending deposit sweep failed", "expired", n, "err", err)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired pending deposit appointments", "count", n, "duration_ms", time.Since(start).Milliseconds())
	}
}
