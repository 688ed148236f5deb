package deadline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/work"
)

const (
	// DefaultIdleInterval is how long the loop sleeps with nothing pending.
	DefaultIdleInterval = time.Second

	// DefaultMaxSleep caps a single computed sleep.
	DefaultMaxSleep = time.Hour
)

// Config holds scheduler configuration.
type Config struct {
	IdleInterval time.Duration    // Sleep with no pending work (default: 1s)
	MaxSleep     time.Duration    // Upper bound for one sleep (default: 1h)
	Now          func() time.Time // Time source (default: time.Now)
	Logger       *zap.Logger      // Defaults to a no-op logger
}

// node is an element of the lock-free ingress stack.
type node struct {
	w    work.Work
	next *node
}

// entry is a pending item with its due time as read in the current pass.
type entry struct {
	w   work.Work
	due time.Time
}

// Scheduler promotes work to a callback once it is due.
type Scheduler struct {
	idleInterval time.Duration
	maxSleep     time.Duration
	now          func() time.Time
	log          *zap.Logger

	ingress atomic.Pointer[node]
	queued  atomic.Int64
	pending atomic.Int64
	wakeup  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	promote func(work.Work)
	started bool
	err     error

	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}
}

// New creates a stopped Scheduler. Non-positive durations take their defaults.
func New(cfg Config) *Scheduler {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = DefaultMaxSleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		idleInterval: cfg.IdleInterval,
		maxSleep:     cfg.MaxSleep,
		now:          cfg.Now,
		log:          cfg.Logger.Named("deadline"),
		wakeup:       make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// OnPromote sets the function called, on the scheduler goroutine, for each
// item that becomes due. It must be set before Start.
func (s *Scheduler) OnPromote(fn func(work.Work)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cannot set promotion callback: %w", dferrors.ErrAlreadyStarted)
	}
	s.promote = fn
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return fmt.Errorf("cannot start deadline scheduler: %w", dferrors.ErrClosed)
	}
	if s.started {
		return fmt.Errorf("cannot start deadline scheduler: %w", dferrors.ErrAlreadyStarted)
	}
	if s.promote == nil {
		return dferrors.NewValidationError("deadline", "promote", nil, "cannot be nil").
			WithHint("call OnPromote before Start")
	}

	s.started = true
	go s.run(s.promote)
	return nil
}

// Submit hands w to the scheduler. It never blocks and may be called from
// any goroutine. Work submitted after Stop is dropped.
func (s *Scheduler) Submit(w work.Work) {
	if s.ctx.Err() != nil {
		s.log.Debug("dropping work, scheduler stopped", zap.String("work", w.Name()))
		return
	}

	n := &node{w: w}
	for {
		head := s.ingress.Load()
		n.next = head
		if s.ingress.CompareAndSwap(head, n) {
			break
		}
	}
	s.queued.Add(1)

	if ce := s.log.Check(zap.DebugLevel, "work accepted for scheduling"); ce != nil {
		ce.Write(zap.String("work", w.Name()), zap.Time("due", w.DueAt()))
	}
	s.wake()
}

// Stop asks the loop to exit and discards all pending work. It does not
// wait; use Done for that. Calling Stop more than once has no effect.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wake()

		var dropped int64
		for n := s.ingress.Swap(nil); n != nil; n = n.next {
			dropped++
		}
		s.queued.Add(-dropped)

		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			s.closeDone()
		}
	})
}

// Done is closed once the loop has exited, or on Stop if it never started.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the fault that terminated the loop, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Len returns the number of items waiting to become due.
func (s *Scheduler) Len() int {
	return int(s.queued.Load() + s.pending.Load())
}

func (s *Scheduler) wake() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Scheduler) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Scheduler) run(promote func(work.Work)) {
	defer s.closeDone()

	var (
		pending []entry
		drained int
	)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", dferrors.ErrSchedulerFault, r)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.log.Error("deadline scheduler terminated", zap.Error(err), zap.Int("pending", len(pending)), zap.Stack("stack"))
		}
		s.queued.Add(-int64(drained))
		s.pending.Store(0)
	}()

	timer := time.NewTimer(s.idleInterval)
	defer timer.Stop()

	for {
		if s.ctx.Err() != nil {
			return
		}

		var sleep time.Duration
		pending, drained = s.drain(pending)
		pending, sleep = s.pass(pending, promote)
		s.pending.Store(int64(len(pending)))
		s.queued.Add(-int64(drained))
		drained = 0

		timer.Reset(sleep)
		select {
		case <-s.ctx.Done():
			return
		case <-s.wakeup:
		case <-timer.C:
		}
	}
}

// drain moves everything from the ingress stack onto pending, oldest first,
// and reports how many items it moved. The caller settles the queued count
// once the items are visible in pending, so Len never under-reports.
func (s *Scheduler) drain(pending []entry) ([]entry, int) {
	head := s.ingress.Swap(nil)
	if head == nil {
		return pending, 0
	}

	start := len(pending)
	for n := head; n != nil; n = n.next {
		pending = append(pending, entry{w: n.w})
	}
	slices.Reverse(pending[start:])
	return pending, len(pending) - start
}

// pass promotes every due item and returns the remaining items with the
// time to sleep before the next one can be due.
func (s *Scheduler) pass(pending []entry, promote func(work.Work)) ([]entry, time.Duration) {
	if len(pending) == 0 {
		return pending, s.idleInterval
	}

	for i := range pending {
		pending[i].due = pending[i].w.DueAt()
	}
	slices.SortStableFunc(pending, func(a, b entry) int {
		return a.due.Compare(b.due)
	})

	now := s.now()
	n := 0
	for n < len(pending) && !pending[n].due.After(now) {
		promote(pending[n].w)
		if ce := s.log.Check(zap.DebugLevel, "work promoted"); ce != nil {
			ce.Write(zap.String("work", pending[n].w.Name()), zap.Duration("lag", now.Sub(pending[n].due)))
		}
		n++
	}
	pending = slices.Delete(pending, 0, n)

	if len(pending) == 0 {
		return pending, s.idleInterval
	}
	sleep := pending[0].due.Sub(now)
	if sleep > s.maxSleep {
		sleep = s.maxSleep
	}
	return pending, sleep
}
