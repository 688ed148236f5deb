package workpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/common/validation"
	"github.com/vnykmshr/dueflow/pkg/metrics"
	"github.com/vnykmshr/dueflow/pkg/scheduling/deadline"
	"github.com/vnykmshr/dueflow/pkg/scheduling/dispatch"
	"github.com/vnykmshr/dueflow/pkg/scheduling/worker"
	"github.com/vnykmshr/dueflow/pkg/work"
)

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Workers     int   // live workers
	Busy        int   // workers executing work
	Registered  int64 // AddWork calls accepted
	Executed    int64 // completed executions
	Failed      int64 // executions that returned an error or panicked
	Queued      int   // due work waiting for a worker
	IdleWorkers int   // workers parked on the dispatch queue
	Pending     int   // work waiting to become due
}

// Pool runs registered work on a fixed set of workers.
type Pool struct {
	cfg     Config
	name    string
	log     *zap.Logger
	metrics *metrics.Registry

	queue     *dispatch.Queue
	scheduler *deadline.Scheduler

	registered atomic.Int64
	executed   atomic.Int64
	failed     atomic.Int64

	mu      sync.Mutex
	workers []*worker.Worker
	started bool
	stopped bool

	done chan struct{}
}

// New creates a pool with the given name and worker count.
func New(name string, workerCount int) (*Pool, error) {
	if err := validation.ValidatePositive("workpool", "WorkerCount", workerCount); err != nil {
		return nil, err
	}
	return NewWithConfig(Config{
		Name:        name,
		WorkerCount: workerCount,
	})
}

// NewWithConfig creates a pool with the specified configuration.
func NewWithConfig(cfg Config) (*Pool, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	base := cfg.Logger.With(zap.String("pool", cfg.Name))
	p := &Pool{
		cfg:     cfg,
		name:    cfg.Name,
		log:     base.Named("workpool"),
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}

	p.scheduler = deadline.New(deadline.Config{
		IdleInterval: cfg.IdleInterval,
		MaxSleep:     cfg.MaxSleep,
		Now:          cfg.Now,
		Logger:       base,
	})

	queue, err := dispatch.New(dispatch.Config{
		Deferrer:     p.scheduler,
		WaitInterval: cfg.WaitInterval,
		Now:          cfg.Now,
		Logger:       base,
	})
	if err != nil {
		return nil, err
	}
	p.queue = queue

	if err := p.scheduler.OnPromote(p.promote); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// AddWork registers w. Work that is already due goes straight to the
// dispatch queue; anything else waits in the deadline scheduler. AddWork
// may be called before or after Start, but only work registered before
// Start counts towards the number of workers started.
func (p *Pool) AddWork(w work.Work) error {
	if w == nil {
		return dferrors.NewValidationError("workpool", "work", nil, "cannot be nil")
	}

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return fmt.Errorf("cannot add work %q to pool %s: %w", w.Name(), p.name, dferrors.ErrClosed)
	}

	p.registered.Add(1)
	if ce := p.log.Check(zap.DebugLevel, "work accepted"); ce != nil {
		ce.Write(zap.String("work", w.Name()), zap.Time("due", w.DueAt()))
	}
	if p.metrics != nil {
		p.metrics.WorkAccepted.WithLabelValues(p.name).Inc()
	}

	p.queue.Return(w)
	p.updateMetrics()
	return nil
}

// Start launches the deadline scheduler and min(WorkerCount, registered)
// workers, all bound to the pool's dispatch queue.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("cannot start pool %s: %w", p.name, dferrors.ErrClosed)
	}
	if p.started {
		return fmt.Errorf("cannot start pool %s: %w", p.name, dferrors.ErrAlreadyStarted)
	}

	if err := p.scheduler.Start(); err != nil {
		return err
	}
	p.started = true

	count := min(p.cfg.WorkerCount, int(p.registered.Load()))
	if count == 0 {
		p.log.Warn("no work registered, pool started without workers")
	}

	wcfg := worker.Config{
		Logger:     p.cfg.Logger.With(zap.String("pool", p.name)),
		OnStart:    p.onWorkStart,
		OnComplete: p.onWorkComplete,
	}
	for i := 0; i < count; i++ {
		w := worker.New(fmt.Sprintf("%s-%d", p.name, i), wcfg)
		if err := w.Start(p.queue); err != nil {
			return err
		}
		p.workers = append(p.workers, w)
	}

	go p.watch(p.workers)

	p.log.Info("pool started", zap.Int("workers", count), zap.Int64("registered", p.registered.Load()))
	p.updateWorkersMetric(count)
	return nil
}

// Stop signals every worker to stop, releases the dispatch queue and stops
// the deadline scheduler. It does not wait for running work; use Done for
// that. Errors reported by work items' Stop methods are joined. A stopped
// pool cannot be restarted, and further Stop calls do nothing.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	workers := p.workers
	p.workers = nil
	started := p.started
	p.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	p.queue.Release()
	p.scheduler.Stop()

	if !started {
		close(p.done)
	}

	err := errors.Join(errs...)
	if err != nil {
		p.log.Error("pool stopped with errors", zap.Int("workers", len(workers)), zap.Error(err))
	} else {
		p.log.Info("pool stopped", zap.Int("workers", len(workers)))
	}
	p.updateWorkersMetric(0)
	p.updateMetrics()
	return err
}

// Done is closed once every worker goroutine and the deadline scheduler
// have exited after Stop.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Err returns the fault that terminated the deadline scheduler, if any.
func (p *Pool) Err() error {
	return p.scheduler.Err()
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stats returns a snapshot of pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	busy := 0
	for _, w := range workers {
		if w.Busy() {
			busy++
		}
	}

	return Stats{
		Workers:     len(workers),
		Busy:        busy,
		Registered:  p.registered.Load(),
		Executed:    p.executed.Load(),
		Failed:      p.failed.Load(),
		Queued:      p.queue.Len(),
		IdleWorkers: p.queue.Idle(),
		Pending:     p.scheduler.Len(),
	}
}

// promote moves work that became due into the dispatch queue.
func (p *Pool) promote(w work.Work) {
	if !p.queue.Enqueue(w) {
		return
	}
	if p.metrics != nil {
		p.metrics.WorkPromoted.WithLabelValues(p.name).Inc()
	}
	p.updateMetrics()
}

// watch closes done when all workers and the scheduler have exited.
func (p *Pool) watch(workers []*worker.Worker) {
	for _, w := range workers {
		<-w.Done()
	}
	<-p.scheduler.Done()
	close(p.done)
}
