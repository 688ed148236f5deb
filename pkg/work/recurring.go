package work

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Recurring runs a body at a fixed interval. The next due time is measured
// from the moment a run starts, so missed slots are skipped rather than
// replayed.
type Recurring struct {
	name     string
	interval time.Duration
	fn       Func
	now      func() time.Time

	mu   sync.Mutex
	due  time.Time
	run  runner
	runs int64
}

// Every creates a Recurring work item that is due immediately.
// It panics if interval is not positive or fn is nil.
func Every(name string, interval time.Duration, fn Func) *Recurring {
	return EveryFrom(name, time.Now(), interval, fn)
}

// EveryFrom creates a Recurring work item whose first run is due at first.
// It panics if interval is not positive or fn is nil.
func EveryFrom(name string, first time.Time, interval time.Duration, fn Func) *Recurring {
	if interval <= 0 {
		panic("work: interval must be positive")
	}
	if fn == nil {
		panic("work: fn cannot be nil")
	}

	return &Recurring{
		name:     name,
		interval: interval,
		fn:       fn,
		now:      time.Now,
		due:      first,
	}
}

// WithClock replaces the time source used to advance the due time.
func (r *Recurring) WithClock(now func() time.Time) *Recurring {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// DueAt implements Work.
func (r *Recurring) DueAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.due
}

// Name implements Work.
func (r *Recurring) Name() string { return r.name }

// Interval returns the configured interval.
func (r *Recurring) Interval() time.Duration { return r.interval }

// Runs returns how many times the body has been started.
func (r *Recurring) Runs() int64 { return atomic.LoadInt64(&r.runs) }

// Start advances the due time by one interval and runs the body.
func (r *Recurring) Start(ctx context.Context) error {
	r.mu.Lock()
	r.due = r.now().Add(r.interval)
	ctx = r.run.begin(ctx)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.run.end()
		r.mu.Unlock()
	}()

	atomic.AddInt64(&r.runs, 1)
	return r.fn(ctx)
}

// Stop cancels the context of a running body. It is a no-op when idle.
func (r *Recurring) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run.cancel != nil {
		r.run.cancel()
	}
	return nil
}
