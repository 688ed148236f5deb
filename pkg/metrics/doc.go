// Package metrics provides Prometheus instrumentation for dueflow pools.
//
// A Registry holds one set of collectors. Every series carries a "pool"
// label, so any number of pools can share one Registry.
//
// # Quick Start
//
// Pass a registry to the pool configuration:
//
//	pool, err := workpool.NewWithConfig(workpool.Config{
//		Name:        "reports",
//		WorkerCount: 4,
//		Metrics:     metrics.Default(),
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// A pool with a nil Metrics field records nothing.
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
// # Available Metrics
//
// ## Work
//
//   - dueflow_work_accepted_total: Work items registered with a pool
//   - dueflow_work_promoted_total: Work items promoted by the deadline scheduler
//   - dueflow_work_executed_total: Work executions
//   - dueflow_work_failed_total: Work executions that returned an error or panicked
//   - dueflow_work_duration_seconds: Time spent executing work
//
// ## Dispatch
//
//   - dueflow_dispatch_lag_seconds: Delay between due time and execution start
//   - dueflow_dispatch_queued: Due work waiting for a worker
//   - dueflow_dispatch_idle_workers: Workers parked waiting for due work
//
// ## Scheduler and pool
//
//   - dueflow_deadline_pending: Work waiting to become due
//   - dueflow_pool_workers: Live workers
package metrics
