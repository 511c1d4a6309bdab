// Package timer arms a single delayed, optionally recurring callback.
//
// Deadlines are kept in wall-clock time and checked on a fixed polling
// resolution rather than with one long sleep. A process that is suspended
// past a deadline fires once when it resumes and then continues the series
// from the current time.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Callback is invoked every time an armed schedule fires. The context is
// cancelled when the schedule that produced the fire is disarmed. A fire
// that comes due while the previous callback of the same schedule is still
// running is skipped.
type Callback func(ctx context.Context, firedAt time.Time)

// DefaultResolution is how often the wall clock is checked.
const DefaultResolution = time.Second

// TickerFunc starts a ticker and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func stdTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Host)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// WithResolution sets how often deadlines are checked.
func WithResolution(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.resolution = d
		}
	}
}

// WithTicker replaces the ticker used to poll the clock.
func WithTicker(f TickerFunc) Option {
	return func(h *Host) { h.newTicker = f }
}

// Host owns at most one armed schedule at a time.
type Host struct {
	callback   Callback
	now        func() time.Time
	resolution time.Duration
	newTicker  TickerFunc

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	deadline time.Time
	period   time.Duration

	callbacks sync.WaitGroup
}

func New(callback Callback, opts ...Option) *Host {
	h := &Host{
		callback:   callback,
		now:        time.Now,
		resolution: DefaultResolution,
		newTicker:  stdTicker,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Arm replaces any armed schedule with one that fires after delay and then
// every period. A zero period fires once.
func (h *Host) Arm(ctx context.Context, delay, period time.Duration) {
	h.Disarm()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	deadline := h.wallNow().Add(delay)

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.deadline = deadline
	h.period = period
	h.mu.Unlock()

	slog.Debug("timer armed", "deadline", deadline, "period", period)
	go h.run(ctx, cancel, done)
}

// Disarm stops the armed schedule, if any, and waits for its loop to exit.
// Callbacks already running are not waited for; see Close.
func (h *Host) Disarm() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.clearLocked()
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Debug("timer disarmed")
}

// Close disarms and waits for in-flight callbacks to return.
func (h *Host) Close() {
	h.Disarm()
	h.callbacks.Wait()
}

// Next returns the next deadline of the armed schedule.
func (h *Host) Next() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return time.Time{}, false
	}
	return h.deadline, true
}

// Armed reports whether a schedule is armed.
func (h *Host) Armed() bool {
	_, ok := h.Next()
	return ok
}

func (h *Host) clearLocked() {
	h.cancel = nil
	h.done = nil
	h.deadline = time.Time{}
	h.period = 0
}

// wallNow strips the monotonic reading so comparisons follow the wall clock
// across suspend and resume.
func (h *Host) wallNow() time.Time {
	return h.now().Round(0)
}

func (h *Host) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	ticks, stop := h.newTicker(h.resolution)
	defer stop()
	defer close(done)

	var busy atomic.Bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}

		now := h.wallNow()

		h.mu.Lock()
		if h.done != done {
			h.mu.Unlock()
			return
		}
		deadline, period := h.deadline, h.period
		if now.Before(deadline) {
			h.mu.Unlock()
			continue
		}

		last := period == 0
		if last {
			h.clearLocked()
		} else {
			missed := 0
			for !deadline.After(now) {
				deadline = deadline.Add(period)
				missed++
			}
			if missed > 1 {
				slog.Info("timer resumed after missing fires", "missed", missed-1)
			}
			h.deadline = deadline
		}
		h.mu.Unlock()

		if !busy.CompareAndSwap(false, true) {
			slog.Warn("skipping fire, previous callback still running", "next", deadline)
			continue
		}
		h.callbacks.Add(1)
		go func() {
			defer h.callbacks.Done()
			defer busy.Store(false)
			if last {
				defer cancel()
			}
			h.callback(ctx, now)
		}()

		if last {
			return
		}
	}
}
