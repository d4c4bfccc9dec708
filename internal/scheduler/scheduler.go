// Package scheduler drives the monitoring cycle at fixed wall-clock times.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"restock-monitor/internal/monitor"
	"restock-monitor/pkg/utils"
)

// TimeOfDay is a trigger point, e.g. 07:00.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid trigger time %q: expected HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseTimes parses a list of "HH:MM" values.
func ParseTimes(values []string) ([]TimeOfDay, error) {
	times := make([]TimeOfDay, 0, len(values))
	for _, v := range values {
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) on(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Runner executes one monitoring cycle.
type Runner interface {
	Run(ctx context.Context) monitor.Report
}

// Scheduler fires the runner at each trigger time. Every execution, whether
// scheduled or manual, holds the same lock, so cycles never overlap: a
// trigger that arrives while a cycle runs waits for it to finish. Ticks
// missed while the process was down are not replayed.
type Scheduler struct {
	runner Runner
	times  []TimeOfDay
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	runMu sync.Mutex

	mu      sync.RWMutex
	last    *monitor.Report
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source and the wait between triggers.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// New creates a Scheduler. loc defaults to UTC.
func New(runner Runner, times []TimeOfDay, loc *time.Location, logger zerolog.Logger, opts ...Option) (*Scheduler, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("scheduler needs at least one trigger time")
	}
	if loc == nil {
		loc = time.UTC
	}

	sorted := append([]TimeOfDay(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].minutes() < sorted[j].minutes() })

	s := &Scheduler{
		runner: runner,
		times:  sorted,
		loc:    loc,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
		sleep:  utils.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Times returns the trigger times in ascending order.
func (s *Scheduler) Times() []TimeOfDay {
	return append([]TimeOfDay(nil), s.times...)
}

// Location returns the timezone of the trigger times.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Next returns the first trigger strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	for day := 0; day <= 1; day++ {
		d := local.AddDate(0, 0, day)
		for _, tod := range s.times {
			if c := tod.on(d, s.loc); c.After(t) {
				return c
			}
		}
	}
	// Unreachable with at least one trigger per day.
	return s.times[0].on(local.AddDate(0, 0, 2), s.loc)
}

// Prev returns the last trigger at or before t.
func (s *Scheduler) Prev(t time.Time) time.Time {
	local := t.In(s.loc)
	for day := 0; day >= -1; day-- {
		d := local.AddDate(0, 0, day)
		for i := len(s.times) - 1; i >= 0; i-- {
			if c := s.times[i].on(d, s.loc); !c.After(t) {
				return c
			}
		}
	}
	return s.times[len(s.times)-1].on(local.AddDate(0, 0, -2), s.loc)
}

// Run fires cycles until ctx is cancelled. Triggers that came due while a
// cycle was running are coalesced into one run right after it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Strs("times", s.timeStrings()).
		Str("timezone", s.loc.String()).
		Msg("Scheduler started")

	anchor := s.now()
	for {
		next := s.Next(anchor)
		if wait := next.Sub(s.now()); wait > 0 {
			s.logger.Debug().Time("next", next).Dur("wait", wait).Msg("Waiting for next trigger")
			if err := s.sleep(ctx, wait); err != nil {
				s.logger.Info().Msg("Scheduler stopped")
				return err
			}
		} else {
			next = s.Prev(s.now())
			s.logger.Warn().Time("trigger", next).Msg("Trigger came due during previous cycle, running now")
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Trigger(ctx)
		anchor = next
	}
}

// Trigger runs one cycle now, waiting for any cycle in progress to finish
// first.
func (s *Scheduler) Trigger(ctx context.Context) monitor.Report {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setRunning(true)
	defer s.setRunning(false)

	report := s.runner.Run(ctx)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	return report
}

// LastReport returns the most recent cycle report, if any.
func (s *Scheduler) LastReport() (monitor.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return monitor.Report{}, false
	}
	return *s.last, true
}

// Running reports whether a cycle is executing.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Scheduler) timeStrings() []string {
	out := make([]string, len(s.times))
	for i, t := range s.times {
		out[i] = t.String()
	}
	return out
}
