// Package scheduler re-evaluates watched requests on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/roadside-assist/internal/observability"
)

const DefaultInterval = 10 * time.Second

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a settable clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{now: t} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// EvaluateFunc brings one request up to date at now. done reports that the
// request no longer needs watching.
type EvaluateFunc func(ctx context.Context, id string, now time.Time) (done bool, err error)

type Scheduler struct {
	eval     EvaluateFunc
	clock    Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watched map[string]struct{}
}

func New(eval EvaluateFunc, clock Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		eval:     eval,
		clock:    clock,
		interval: interval,
		logger:   logger,
		watched:  make(map[string]struct{}),
	}
}

func (s *Scheduler) Watch(id string) {
	s.mu.Lock()
	if _, ok := s.watched[id]; !ok {
		s.watched[id] = struct{}{}
		observability.ActiveRequests.Inc()
	}
	s.mu.Unlock()
}

func (s *Scheduler) Stop(id string) {
	s.mu.Lock()
	if _, ok := s.watched[id]; ok {
		delete(s.watched, id)
		observability.ActiveRequests.Dec()
	}
	s.mu.Unlock()
}

func (s *Scheduler) Watching(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[id]
	return ok
}

// Watched returns the watched ids in sorted order.
func (s *Scheduler) Watched() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Trigger evaluates one request now, synchronously.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	done, err := s.eval(ctx, id, s.clock.Now())
	if err != nil {
		return err
	}
	if done {
		s.Stop(id)
	}
	return nil
}

// Tick evaluates every watched request once. Errors are logged and the
// request stays watched for the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	observability.SchedulerTicks.Inc()
	for _, id := range s.Watched() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Trigger(ctx, id); err != nil {
			s.logger.Warn("scheduled evaluation failed", "request_id", id, "error", err)
		}
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}
