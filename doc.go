/*
Package dueflow provides a periodic work scheduler backed by a fixed pool of
dedicated workers.

Work (pkg/work):
  - Work: the interface every item implements; an item owns its due time
  - Every, EveryFrom: fixed-interval recurring work
  - NewCron: cron-expression work
  - lease: run work on one instance at a time with Redis leases

Scheduling (pkg/scheduling):
  - workpool: the Pool that owns workers, a dispatch queue and a deadline scheduler
  - dispatch: FIFO of due work with parked-worker wakeups
  - deadline: timer loop that promotes work once it is due
  - worker: one dedicated goroutine bound to a dispatch queue

Observability (pkg/metrics):
  - Prometheus collectors labelled by pool

Example usage:

	import (
		"github.com/vnykmshr/dueflow/pkg/scheduling/workpool"
		"github.com/vnykmshr/dueflow/pkg/work"
	)

	pool, _ := workpool.New("sync", 2) // up to 2 workers
	_ = pool.AddWork(work.Every("refresh", time.Minute, refresh))
	_ = pool.Start()
	defer pool.Stop()
*/
package dueflow
