// Package scheduler runs periodic housekeeping for attendance sessions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// DefaultInterval is used when no sweep interval is configured.
const DefaultInterval = time.Minute

// Sweeper deactivates sessions whose end time has passed and prunes stale
// debounce windows.
type Sweeper struct {
	ledger    *attendance.Ledger
	debouncer *attendance.Debouncer
	interval  time.Duration
	logger    *slog.Logger
	scheduler *gocron.Scheduler
}

// NewSweeper creates a sweeper. debouncer may be nil.
func NewSweeper(ledger *attendance.Ledger, debouncer *attendance.Debouncer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		ledger:    ledger,
		debouncer: debouncer,
		interval:  interval,
		logger:    logger,
	}
}

// Interval returns the sweep interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Sweep runs one housekeeping pass and returns the deactivated session IDs.
func (s *Sweeper) Sweep(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.ledger.DeactivateExpired(ctx)
	if err != nil {
		return nil, err
	}
	if s.debouncer != nil {
		for _, id := range ids {
			s.debouncer.Forget(id)
		}
		if n := s.debouncer.Prune(); n > 0 {
			s.logger.Debug("pruned debounce windows", "count", n)
		}
	}
	return ids, nil
}

// Start schedules Sweep every interval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.scheduler != nil {
		return fmt.Errorf("sweeper already started")
	}

	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	_, err := sched.Every(s.interval).Do(func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("session sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	s.scheduler = sched
	sched.StartAsync()
	s.logger.Info("session sweeper started", "interval", s.interval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule. Safe to call more than once.
func (s *Sweeper) Stop() {
	if s.scheduler == nil || !s.scheduler.IsRunning() {
		return
	}
	s.scheduler.Stop()
	s.logger.Info("session sweeper stopped")
}
