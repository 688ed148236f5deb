package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/common/validation"
	"github.com/vnykmshr/dueflow/pkg/work"
)

// DefaultWaitInterval bounds a single park in TryTake.
const DefaultWaitInterval = time.Second

// Deferrer accepts work that is not yet due.
type Deferrer interface {
	Submit(w work.Work)
}

// Config holds configuration for a Queue.
type Config struct {
	// Deferrer receives work that is not due when returned. Required.
	Deferrer Deferrer

	// WaitInterval is the longest a taker parks before re-checking.
	// Defaults to DefaultWaitInterval.
	WaitInterval time.Duration

	// Now is the time source for due checks. Defaults to time.Now.
	Now func() time.Time

	// Logger receives debug records for queue transitions. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Queue is a FIFO of due work plus a registry of parked takers.
type Queue struct {
	deferrer Deferrer
	wait     time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu       sync.Mutex
	items    []work.Work
	idle     []chan struct{}
	released bool
}

// New creates a Queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Deferrer == nil {
		return nil, dferrors.NewValidationError("dispatch", "Deferrer", nil, "cannot be nil").
			WithHint("provide the scheduler that holds work until it is due")
	}
	if cfg.WaitInterval == 0 {
		cfg.WaitInterval = DefaultWaitInterval
	}
	if err := validation.ValidatePositiveDuration("dispatch", "WaitInterval", cfg.WaitInterval); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		deferrer: cfg.Deferrer,
		wait:     cfg.WaitInterval,
		now:      cfg.Now,
		log:      cfg.Logger.Named("dispatch"),
	}, nil
}

// Enqueue appends due work and wakes one parked taker. It reports false,
// dropping w, once the queue has been released.
func (q *Queue) Enqueue(w work.Work) bool {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		q.log.Debug("dropping work, queue released", zap.String("work", w.Name()))
		return false
	}
	q.items = append(q.items, w)
	q.notifyOneLocked()
	q.mu.Unlock()
	return true
}

// TryTake returns the oldest due work. With an empty queue it parks for up
// to the wait interval at a time until work arrives. It returns (nil, false)
// once the queue is released or ctx is done.
func (q *Queue) TryTake(ctx context.Context) (work.Work, bool) {
	var timer *time.Timer

	for {
		q.mu.Lock()
		if q.released {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.items) > 0 {
			w := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return w, true
		}
		signal := make(chan struct{}, 1)
		q.idle = append(q.idle, signal)
		q.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(q.wait)
			defer timer.Stop()
		} else {
			timer.Reset(q.wait)
		}

		select {
		case <-signal:
		case <-timer.C:
			q.forget(signal)
		case <-ctx.Done():
			if !q.forget(signal) {
				// Signaled while leaving; hand the wakeup on.
				q.mu.Lock()
				q.notifyOneLocked()
				q.mu.Unlock()
			}
			return nil, false
		}
	}
}

// Return routes work coming back from a worker: due work goes back into the
// FIFO, anything else to the Deferrer. Work returned after Release is dropped.
func (q *Queue) Return(w work.Work) {
	if q.Released() {
		q.log.Debug("dropping returned work, queue released", zap.String("work", w.Name()))
		return
	}
	if work.IsDue(w, q.now()) {
		q.Enqueue(w)
		return
	}
	q.log.Debug("deferring work", zap.String("work", w.Name()), zap.Time("due", w.DueAt()))
	q.deferrer.Submit(w)
}

// Release marks the queue released, wakes every parked taker and clears the
// FIFO. Calling it again has no effect.
func (q *Queue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return
	}
	q.released = true
	for _, signal := range q.idle {
		signal <- struct{}{}
	}
	q.idle = nil
	q.items = nil
}

// Len returns the number of due items waiting for a worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Idle returns the number of parked takers.
func (q *Queue) Idle() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.idle)
}

// Released reports whether Release has been called.
func (q *Queue) Released() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.released
}

// notifyOneLocked wakes the longest-parked taker, if any.
func (q *Queue) notifyOneLocked() {
	if len(q.idle) == 0 {
		return
	}
	signal := q.idle[0]
	q.idle[0] = nil
	q.idle = q.idle[1:]
	signal <- struct{}{}
}

// forget removes signal from the idle set, reporting whether it was still
// registered (and therefore not signaled).
func (q *Queue) forget(signal chan struct{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.idle {
		if s == signal {
			q.idle = append(q.idle[:i], q.idle[i+1:]...)
			return true
		}
	}
	return false
}
