package work

import (
	"context"
	"time"
)

// Work is a schedulable unit. Implementations are owned by the caller and
// must be safe for DueAt, Name and Stop to be called while Start runs.
type Work interface {
	// DueAt returns the time at or after which the work may run.
	DueAt() time.Time

	// Name identifies the work in logs and metrics.
	Name() string

	// Start runs the work body. ctx is canceled when the executing
	// worker is asked to stop.
	Start(ctx context.Context) error

	// Stop asks a running Start to return early.
	Stop() error
}

// Func is the body of a work item.
type Func func(ctx context.Context) error

// IsDue reports whether w may run at now.
func IsDue(w Work, now time.Time) bool {
	return !w.DueAt().After(now)
}

// runner tracks the cancel function of the body currently running.
type runner struct {
	cancel context.CancelFunc
}

func (r *runner) begin(ctx context.Context) context.Context {
	ctx, r.cancel = context.WithCancel(ctx)
	return ctx
}

func (r *runner) end() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
