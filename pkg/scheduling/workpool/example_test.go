package workpool_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/dueflow/pkg/scheduling/workpool"
	"github.com/vnykmshr/dueflow/pkg/work"
)

// Example demonstrates running recurring work on a pool.
func Example() {
	pool, err := workpool.New("example", 1)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	var runs atomic.Int32
	done := make(chan struct{})
	_ = pool.AddWork(work.Every("heartbeat", 10*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 3 {
			close(done)
		}
		return nil
	}))

	if err := pool.Start(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("workers:", pool.Size())

	<-done
	_ = pool.Stop()
	<-pool.Done()

	fmt.Println("ran at least 3 times:", runs.Load() >= 3)

	// Output:
	// workers: 1
	// ran at least 3 times: true
}

// Example_cron demonstrates scheduling work from a cron expression.
func Example_cron() {
	report, err := work.NewCron("nightly-report", "0 2 * * *", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	pool, _ := workpool.New("reports", 2)
	_ = pool.AddWork(report)

	stats := pool.Stats()
	fmt.Println("queued:", stats.Queued, "pending:", stats.Pending)

	_ = pool.Start()
	fmt.Println("workers:", pool.Size())

	_ = pool.Stop()
	<-pool.Done()

	// Output:
	// queued: 0 pending: 1
	// workers: 1
}
