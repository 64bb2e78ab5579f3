package chat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often a ready session re-reads the message log.
const DefaultPollInterval = 2 * time.Second

// Clock abstracts time so polling can run against virtual time in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Scheduler calls a tick function on a fixed interval until cancelled.
//
// Each fire arms the next timer before running the tick, so the cadence does
// not drift with tick latency. A fire that lands while the previous tick is
// still running is skipped rather than overlapped. A skipped fire is not
// replayed once the slow tick returns; the next tick runs on the following
// interval boundary.
type Scheduler struct {
	clock    Clock
	interval time.Duration
	tick     func(context.Context)
	logger   *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	timer    Timer
	started  bool
	canceled bool

	inFlight atomic.Bool
	running  sync.WaitGroup
}

// NewScheduler creates a stopped scheduler. A non-positive interval uses DefaultPollInterval.
func NewScheduler(clock Clock, interval time.Duration, tick func(context.Context), logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// Interval returns the polling interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start arms the first tick. Ticks receive ctx.
// Starting twice, or after Cancel, does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.canceled {
		return
	}
	s.started = true
	s.ctx = ctx
	s.timer = s.clock.AfterFunc(s.interval, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.timer = s.clock.AfterFunc(s.interval, s.fire)
	ctx := s.ctx
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("previous poll still running, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	s.tick(ctx)
}

// Cancel stops the armed timer. A tick already running is not interrupted,
// but nothing is scheduled after it. Safe to call more than once.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.canceled {
		return
	}
	s.canceled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Canceled reports whether Cancel has been called.
func (s *Scheduler) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// Wait blocks until a running tick returns. Call it after Cancel.
func (s *Scheduler) Wait() {
	s.running.Wait()
}
