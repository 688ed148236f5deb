package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/common/validation"
	"github.com/vnykmshr/dueflow/pkg/work"
)

// Source hands out due work and takes it back after execution.
type Source interface {
	// TryTake blocks until work is available. It returns false once the
	// source is released or ctx is done.
	TryTake(ctx context.Context) (work.Work, bool)

	// Return hands executed work back to the source.
	Return(w work.Work)
}

// Config holds optional worker settings.
type Config struct {
	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// OnStart is called before a work item begins execution.
	OnStart func(worker string, w work.Work)

	// OnComplete is called after a work item finishes, successfully or not.
	OnComplete func(worker string, w work.Work, d time.Duration, err error)
}

// Worker executes work from one Source on its own goroutine.
type Worker struct {
	name       string
	log        *zap.Logger
	onStart    func(string, work.Work)
	onComplete func(string, work.Work, time.Duration, error)

	ctx    context.Context
	cancel context.CancelFunc
	busy   atomic.Bool

	mu      sync.Mutex
	src     Source
	current work.Work
	stopped bool

	doneOnce sync.Once
	done     chan struct{}
}

// New creates an unbound worker.
func New(name string, cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		name:       name,
		log:        cfg.Logger.Named("worker").With(zap.String("worker", name)),
		onStart:    cfg.OnStart,
		onComplete: cfg.OnComplete,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

// Busy reports whether the worker is executing a work item.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Done is closed when the worker goroutine has exited, or on Stop if the
// worker was never started.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Start binds the worker to src and launches its goroutine. A worker can be
// bound only once.
func (w *Worker) Start(src Source) error {
	if err := validation.ValidateNotNil("worker", "source", src); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("cannot start worker %s: %w", w.name, dferrors.ErrClosed)
	}
	if w.src != nil {
		err := fmt.Errorf("cannot start worker %s: %w", w.name, dferrors.ErrAlreadyStarted)
		w.log.Error("worker is already bound to a source", zap.Error(err))
		return err
	}

	w.src = src
	go w.run(src)
	return nil
}

// Stop asks the worker to exit after its current item. It cancels the
// item's context and calls the item's Stop, returning that call's error.
// Stop does not wait for the goroutine; use Done for that.
//
// The item's Stop runs before the item is handed back to the source, so it
// never reaches a later run of the same item on another worker.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	bound := w.src != nil
	w.cancel()

	current := w.current
	var err error
	if current != nil {
		err = stopWork(current)
	}
	w.mu.Unlock()

	if !bound {
		w.closeDone()
	}
	if err != nil {
		w.log.Error("work stop failed", zap.String("work", current.Name()), zap.Error(err))
	}
	return err
}

func (w *Worker) closeDone() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *Worker) run(src Source) {
	defer w.closeDone()
	w.log.Debug("worker started")

	for w.ctx.Err() == nil {
		item, ok := src.TryTake(w.ctx)
		if !ok {
			break
		}
		if !w.begin(item) {
			src.Return(item)
			break
		}

		w.execute(item)
		w.end()
		src.Return(item)
	}

	w.log.Info("worker stopped")
}

// begin records item as current unless the worker is stopping.
func (w *Worker) begin(item work.Work) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.current = item
	w.busy.Store(true)
	return true
}

func (w *Worker) end() {
	w.mu.Lock()
	w.current = nil
	w.busy.Store(false)
	w.mu.Unlock()
}

// execute runs item and reports the outcome. Failures are not propagated.
func (w *Worker) execute(item work.Work) {
	if w.onStart != nil {
		w.hook("OnStart", item, func() { w.onStart(w.name, item) })
	}
	w.log.Debug("work started", zap.String("work", item.Name()))

	start := time.Now()
	err := startWork(w.ctx, item)
	duration := time.Since(start)

	if err != nil {
		w.log.Error("work failed", zap.String("work", item.Name()), zap.Duration("duration", duration), zap.Error(err))
	} else {
		w.log.Debug("work finished", zap.String("work", item.Name()), zap.Duration("duration", duration))
	}

	if w.onComplete != nil {
		w.hook("OnComplete", item, func() { w.onComplete(w.name, item, duration, err) })
	}
}

// hook runs a caller-supplied callback, logging instead of dying if it panics.
func (w *Worker) hook(name string, item work.Work, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("hook panicked",
				zap.String("hook", name),
				zap.String("work", item.Name()),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func startWork(ctx context.Context, item work.Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dferrors.NewOperationError("worker", "Start", fmt.Errorf("work panicked: %v", r)).
				WithContext("work=" + item.Name())
		}
	}()

	if err := item.Start(ctx); err != nil {
		return dferrors.NewOperationError("worker", "Start", err).WithContext("work=" + item.Name())
	}
	return nil
}

func stopWork(item work.Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dferrors.NewOperationError("worker", "Stop", fmt.Errorf("work panicked: %v", r)).
				WithContext("work=" + item.Name())
		}
	}()

	if err := item.Stop(); err != nil {
		return dferrors.NewOperationError("worker", "Stop", err).WithContext("work=" + item.Name())
	}
	return nil
}
