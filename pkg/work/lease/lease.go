// Package lease wraps work items with a Redis lease so that, when the same
// work is registered in several processes, only one of them runs the body
// for a given slot.
//
// The lease is a single key set with SET NX PX. After the body returns, the
// holder keeps the key until the inner item is next due, so replicas whose
// copy of the slot comes due a little later find it taken. A compare-and-set
// script moves the expiry, or deletes the key when the item is already due
// again, and never touches a key owned by someone else. The lease is not
// renewed while the body runs, so TTL should exceed the expected run time.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	leased, err := lease.Wrap(work.Every("compact", time.Minute, compact), lease.Config{
//		Redis: client,
//		TTL:   2 * time.Minute,
//	})
//	pool.AddWork(leased)
package lease

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/common/validation"
	"github.com/vnykmshr/dueflow/pkg/work"
)

// luaSettle keeps the lease for ARGV[2] more milliseconds, or drops it when
// ARGV[2] is zero, provided ARGV[1] still owns it.
const luaSettle = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local hold = tonumber(ARGV[2])
if hold > 0 then
	return redis.call("PEXPIRE", KEYS[1], hold)
end
return redis.call("DEL", KEYS[1])
`

// Config holds configuration for a leased work item.
type Config struct {
	// Redis client used to hold the lease. Required.
	Redis redis.UniversalClient

	// Key is the lease key. Defaults to "dueflow:lease:<work name>".
	Key string

	// TTL bounds how long a lease survives a crashed holder. Default 30s.
	TTL time.Duration

	// Owner identifies this process. Defaults to "<hostname>-<pid>".
	Owner string

	// RetryInterval is how long to wait before trying again after Redis
	// failed, or after the lease was found held without an expiry. A lease
	// held with an expiry is retried when it expires. Defaults to TTL.
	RetryInterval time.Duration

	// Now is the time source. Defaults to time.Now.
	Now func() time.Time
}

// Work is a work.Work that only runs its inner item while holding the lease.
type Work struct {
	inner   work.Work
	cfg     Config
	settle  *redis.Script

	mu      sync.Mutex
	retryAt time.Time

	acquired int64
	skipped  int64
}

var _ work.Work = (*Work)(nil)

// Wrap decorates inner with a Redis lease.
func Wrap(inner work.Work, cfg Config) (*Work, error) {
	if inner == nil {
		return nil, dferrors.NewValidationError("lease", "inner", nil, "cannot be nil").
			WithHint("provide the work item to protect")
	}
	if cfg.Redis == nil {
		return nil, dferrors.NewValidationError("lease", "Redis", nil, "cannot be nil").
			WithHint("provide a redis.UniversalClient")
	}
	if err := validation.ValidateNonNegativeDuration("lease", "TTL", cfg.TTL); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("lease", "RetryInterval", cfg.RetryInterval); err != nil {
		return nil, err
	}

	if cfg.Key == "" {
		cfg.Key = "dueflow:lease:" + inner.Name()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = cfg.TTL
	}
	if cfg.Owner == "" {
		cfg.Owner = defaultOwner()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Work{
		inner:   inner,
		cfg:     cfg,
		settle:  redis.NewScript(luaSettle),
	}, nil
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// DueAt returns the later of the inner due time and the retry time set
// after a failed acquisition.
func (w *Work) DueAt() time.Time {
	due := w.inner.DueAt()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retryAt.After(due) {
		return w.retryAt
	}
	return due
}

// Name implements work.Work.
func (w *Work) Name() string { return w.inner.Name() }

// Key returns the Redis key guarding the work.
func (w *Work) Key() string { return w.cfg.Key }

// Acquired returns how many runs held the lease.
func (w *Work) Acquired() int64 { return atomic.LoadInt64(&w.acquired) }

// Skipped returns how many runs were skipped because the lease was held elsewhere.
func (w *Work) Skipped() int64 { return atomic.LoadInt64(&w.skipped) }

// Start runs the inner work if the lease can be acquired.
func (w *Work) Start(ctx context.Context) error {
	ok, err := w.cfg.Redis.SetNX(ctx, w.cfg.Key, w.cfg.Owner, w.cfg.TTL).Result()
	if err != nil {
		w.backoff(w.cfg.RetryInterval)
		return dferrors.NewOperationError("lease", "Acquire", err).WithContext("key=" + w.cfg.Key)
	}
	if !ok {
		w.backoff(w.heldFor(ctx))
		atomic.AddInt64(&w.skipped, 1)
		return nil
	}
	atomic.AddInt64(&w.acquired, 1)

	runErr := w.inner.Start(ctx)

	// The body may have been stopped; settle regardless.
	var hold int64
	if next := w.inner.DueAt().Sub(w.cfg.Now()); next > 0 {
		hold = max(next.Milliseconds(), 1)
	}
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.TTL)
	defer cancel()
	if setErr := w.settle.Run(setCtx, w.cfg.Redis, []string{w.cfg.Key}, w.cfg.Owner, hold).Err(); setErr != nil {
		setErr = dferrors.NewOperationError("lease", "Release", setErr).WithContext("key=" + w.cfg.Key)
		return errors.Join(runErr, setErr)
	}
	return runErr
}

// heldFor reports how long the lease will stay with its current holder,
// falling back to RetryInterval when Redis cannot say.
func (w *Work) heldFor(ctx context.Context) time.Duration {
	ttl, err := w.cfg.Redis.PTTL(ctx, w.cfg.Key).Result()
	if err != nil || ttl <= 0 {
		return w.cfg.RetryInterval
	}
	return ttl
}

// Stop forwards to the inner work.
func (w *Work) Stop() error {
	return w.inner.Stop()
}

func (w *Work) backoff(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.retryAt = w.cfg.Now().Add(d)
}
