package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/scheduler"
)

var _ suture.Service = (*scheduler.Scheduler)(nil)

type countingSyncer struct {
	calls atomic.Int32
	full  atomic.Bool
	err   error
}

func (c *countingSyncer) Sync(_ context.Context, full bool) (*domain.SyncResult, error) {
	c.calls.Add(1)
	if full {
		c.full.Store(true)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &domain.SyncResult{Success: true}, nil
}

func fastPeriods(name string) (time.Duration, bool) {
	if name == domain.IntervalManual {
		return 0, false
	}
	return 10 * time.Millisecond, true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerRunsIncrementalSyncs(t *testing.T) {
	s := &countingSyncer{}
	sched := scheduler.New(s, scheduler.Config{Interval: domain.IntervalHourly, Periods: fastPeriods})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Serve(ctx) }()

	waitFor(t, func() bool { return s.calls.Load() >= 2 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	if s.full.Load() {
		t.Error("scheduled sync ran as full")
	}
	if sched.Next() != nil {
		t.Errorf("Next() after stop = %v, want nil", sched.Next())
	}
}

func TestSchedulerManualSchedulesNothing(t *testing.T) {
	s := &countingSyncer{}
	sched := scheduler.New(s, scheduler.Config{Interval: domain.IntervalManual, Periods: fastPeriods})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if n := s.calls.Load(); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
	if sched.Next() != nil {
		t.Errorf("Next() = %v, want nil", sched.Next())
	}

	sched.Reschedule(domain.IntervalDaily)
	waitFor(t, func() bool { return s.calls.Load() >= 1 })
}

func TestSchedulerNext(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	sched := scheduler.New(&countingSyncer{}, scheduler.Config{
		Interval: domain.IntervalTwiceDaily,
		Clock:    func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Serve(ctx) }()

	want := now.Add(12 * time.Hour)
	waitFor(t, func() bool {
		next := sched.Next()
		return next != nil && next.Equal(want)
	})

	sched.Reschedule(domain.IntervalEvery15Minutes)
	want = now.Add(15 * time.Minute)
	waitFor(t, func() bool {
		next := sched.Next()
		return next != nil && next.Equal(want)
	})
}

func TestSchedulerSurvivesSyncErrors(t *testing.T) {
	s := &countingSyncer{err: &domain.ConcurrencyError{Message: "Sync already in progress"}}
	sched := scheduler.New(s, scheduler.Config{Interval: domain.IntervalHourly, Periods: fastPeriods})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Serve(ctx) }()

	waitFor(t, func() bool { return s.calls.Load() >= 3 })
}
