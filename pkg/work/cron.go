package work

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/common/validation"
)

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field and descriptors such as @hourly or @every 5m.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// dormant parks a Cron whose schedule has no further activation. Comparing
// any realistic clock against it reports not due.
var dormant = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Cron runs a body on a cron schedule.
type Cron struct {
	name     string
	expr     string
	schedule cron.Schedule
	location *time.Location
	fn       Func
	now      func() time.Time

	mu   sync.Mutex
	due  time.Time
	run  runner
	runs int64
}

// NewCron creates a Cron work item evaluated in the local time zone.
func NewCron(name, expr string, fn Func) (*Cron, error) {
	return NewCronIn(name, expr, time.Local, fn)
}

// NewCronIn creates a Cron work item evaluated in loc. The first run is due
// at the next schedule activation after now.
func NewCronIn(name, expr string, loc *time.Location, fn Func) (*Cron, error) {
	if err := validation.ValidateNotEmpty("work", "cron", expr); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, dferrors.NewValidationError("work", "fn", nil, "cannot be nil").
			WithHint("provide the function to run on schedule")
	}
	if loc == nil {
		loc = time.Local
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, dferrors.NewValidationError("work", "cron", expr, err.Error()).
			WithHint(`use "min hour dom month dow", an optional leading seconds field, or a descriptor like @hourly`)
	}

	c := &Cron{
		name:     name,
		expr:     expr,
		schedule: schedule,
		location: loc,
		fn:       fn,
		now:      time.Now,
	}
	c.due = c.next()
	if c.due.Equal(dormant) {
		return nil, dferrors.NewValidationError("work", "cron", expr, "schedule never activates").
			WithHint("check the day of month against the month, e.g. February has no 30th")
	}
	return c, nil
}

// WithClock replaces the time source and recomputes the next due time.
func (c *Cron) WithClock(now func() time.Time) *Cron {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.due = c.next()
	return c
}

// next returns the activation after now, or dormant when the schedule finds
// none.
func (c *Cron) next() time.Time {
	t := c.schedule.Next(c.now().In(c.location))
	if t.IsZero() {
		return dormant
	}
	return t
}

// DueAt implements Work.
func (c *Cron) DueAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.due
}

// Name implements Work.
func (c *Cron) Name() string { return c.name }

// Expression returns the cron expression the item was built from.
func (c *Cron) Expression() string { return c.expr }

// Runs returns how many times the body has been started.
func (c *Cron) Runs() int64 { return atomic.LoadInt64(&c.runs) }

// Start moves the due time to the next activation and runs the body. A
// dormant item returns without running it.
func (c *Cron) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.due.Equal(dormant) {
		c.mu.Unlock()
		return nil
	}
	c.due = c.next()
	ctx = c.run.begin(ctx)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.run.end()
		c.mu.Unlock()
	}()

	atomic.AddInt64(&c.runs, 1)
	return c.fn(ctx)
}

// Stop cancels the context of a running body.
func (c *Cron) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run.cancel != nil {
		c.run.cancel()
	}
	return nil
}
