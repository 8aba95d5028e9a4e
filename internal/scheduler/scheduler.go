// Package scheduler runs incremental syncs on the configured interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/johnwards/hsevents/internal/domain"
)

// Syncer runs one sync.
type Syncer interface {
	Sync(ctx context.Context, full bool) (*domain.SyncResult, error)
}

// Config configures a Scheduler.
type Config struct {
	// Interval is the initial interval name, e.g. "hourly".
	Interval string
	// Periods maps an interval name to its period. Defaults to
	// domain.IntervalDuration.
	Periods func(name string) (time.Duration, bool)
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Scheduler is a suture service that calls Sync(ctx, false) once per
// interval. A manual interval schedules nothing.
type Scheduler struct {
	syncer  Syncer
	periods func(string) (time.Duration, bool)
	now     func() time.Time
	logger  *slog.Logger
	wake    chan struct{}

	mu       sync.Mutex
	interval string
	next     *time.Time
}

// New creates a Scheduler.
func New(s Syncer, cfg Config) *Scheduler {
	if cfg.Periods == nil {
		cfg.Periods = domain.IntervalDuration
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		syncer:   s,
		periods:  cfg.Periods,
		now:      cfg.Clock,
		logger:   cfg.Logger.With("component", "scheduler"),
		wake:     make(chan struct{}, 1),
		interval: cfg.Interval,
	}
}

// Reschedule switches to a new interval. The next run is one full period
// from now.
func (s *Scheduler) Reschedule(interval string) {
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.logger.Info("sync rescheduled", "interval", interval)
}

// Next returns the time of the next scheduled sync, or nil when none is
// scheduled.
func (s *Scheduler) Next() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return nil
	}
	t := *s.next
	return &t
}

// arm computes the next run from the current interval.
func (s *Scheduler) arm() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.periods(s.interval)
	if !ok {
		s.next = nil
		return 0, false
	}
	t := s.now().Add(d)
	s.next = &t
	return d, true
}

func (s *Scheduler) disarm() {
	s.mu.Lock()
	s.next = nil
	s.mu.Unlock()
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	defer s.disarm()

	for {
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

// wait blocks until the next run fires, the interval changes or ctx ends.
func (s *Scheduler) wait(ctx context.Context) error {
	var fire <-chan time.Time
	if d, ok := s.arm(); ok {
		timer := time.NewTimer(d)
		defer timer.Stop()
		fire = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.wake:
	case <-fire:
		s.run(ctx)
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	res, err := s.syncer.Sync(ctx, false)
	var conc *domain.ConcurrencyError
	var cfg *domain.ConfigurationError
	switch {
	case errors.As(err, &conc):
		s.logger.Info("scheduled sync skipped, another sync is running")
	case errors.As(err, &cfg):
		s.logger.Warn("scheduled sync skipped", "reason", cfg.Message)
	case err != nil:
		s.logger.Error("scheduled sync failed", "error", err)
	default:
		s.logger.Info("scheduled sync finished",
			"created", res.Created,
			"updated", res.Updated,
			"skipped", res.Skipped,
		)
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string {
	return "sync-scheduler"
}
