// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that different components work together correctly in realistic scenarios.
package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/dueflow/internal/testutil"
	"github.com/vnykmshr/dueflow/pkg/metrics"
	"github.com/vnykmshr/dueflow/pkg/scheduling/workpool"
	"github.com/vnykmshr/dueflow/pkg/work"
	"github.com/vnykmshr/dueflow/pkg/work/lease"
)

// TestLeasedWorkAcrossPools verifies that pools on separate "instances"
// sharing a lease key never run the protected body at the same time.
func TestLeasedWorkAcrossPools(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	// miniredis only expires keys when told to; keep its clock moving.
	stopClock := make(chan struct{})
	clockDone := make(chan struct{})
	go func() {
		defer close(clockDone)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mr.FastForward(5 * time.Millisecond)
			case <-stopClock:
				return
			}
		}
	}()

	m := metrics.NewRegistry(prometheus.NewRegistry())
	factory := workpool.NewFactory(nil, m)

	var running, overlaps, total atomic.Int32
	body := func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer running.Add(-1)
		total.Add(1)

		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}

	const instances = 3
	pools := make([]*workpool.Pool, instances)
	leases := make([]*lease.Work, instances)
	for i := range pools {
		leased, err := lease.Wrap(work.Every("sync", 30*time.Millisecond, body), lease.Config{
			Redis:         rdb,
			Key:           "integration:sync",
			Owner:         fmt.Sprintf("instance-%d", i),
			TTL:           time.Second,
			RetryInterval: 10 * time.Millisecond,
		})
		testutil.AssertNoError(t, err)
		leases[i] = leased

		p, err := factory.Create(fmt.Sprintf("instance-%d", i), 1)
		testutil.AssertNoError(t, err)
		testutil.AssertNoError(t, p.AddWork(leased))
		testutil.AssertNoError(t, p.Start())
		pools[i] = p
	}

	testutil.Eventually(t, func() bool { return total.Load() >= 10 }, 5*time.Second, 5*time.Millisecond)

	for _, p := range pools {
		testutil.AssertNoError(t, p.Stop())
	}
	for _, p := range pools {
		testutil.WaitClosed(t, p.Done(), 2*time.Second)
	}
	close(stopClock)
	<-clockDone

	testutil.AssertEqual(t, overlaps.Load(), int32(0))

	var acquired, skipped int64
	for _, l := range leases {
		acquired += l.Acquired()
		skipped += l.Skipped()
	}
	testutil.AssertEqual(t, acquired, int64(total.Load()))
	if skipped == 0 {
		t.Error("expected at least one instance to find the lease held")
	}

	var executed float64
	for i := range pools {
		executed += promtest.ToFloat64(m.WorkExecuted.WithLabelValues(fmt.Sprintf("instance-%d", i)))
	}
	testutil.AssertEqual(t, executed, float64(acquired+skipped))

	// The last holder keeps the key no longer than one interval.
	if ttl := mr.TTL("integration:sync"); ttl > 30*time.Millisecond {
		t.Errorf("lease TTL after stop = %v, want at most one interval", ttl)
	}
}

// TestCronAndRecurringShareWorkers verifies that different work kinds
// registered on one pool are all dispatched by a single worker.
func TestCronAndRecurringShareWorkers(t *testing.T) {
	pool, err := workpool.New("mixed", 1)
	testutil.AssertNoError(t, err)

	var ticks, crons atomic.Int32
	tick := work.Every("tick", 20*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	})
	every, err := work.NewCron("every-second", "@every 1s", func(context.Context) error {
		crons.Add(1)
		return nil
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, pool.AddWork(tick))
	testutil.AssertNoError(t, pool.AddWork(every))
	testutil.AssertNoError(t, pool.Start())
	testutil.AssertEqual(t, pool.Size(), 1)

	testutil.Eventually(t, func() bool { return crons.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	if ticks.Load() < 10 {
		t.Errorf("recurring work ran %d times while waiting for cron", ticks.Load())
	}

	testutil.AssertNoError(t, pool.Stop())
	testutil.WaitClosed(t, pool.Done(), time.Second)
}
