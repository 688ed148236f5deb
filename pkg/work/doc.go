/*
Package work defines the unit of schedulable work handled by a work pool.

A Work value carries its own due time. The pool never changes it: the work
item advances its own due time, usually at the beginning of Start, to get
recurring behavior. A work item whose due time stays in the past is run
again as soon as a worker is free.

	type Work interface {
		DueAt() time.Time
		Name() string
		Start(ctx context.Context) error
		Stop() error
	}

Two ready-made implementations cover the common schedules:

	// Every 30 seconds, first run immediately.
	heartbeat := work.Every("heartbeat", 30*time.Second, func(ctx context.Context) error {
		return ping(ctx)
	})

	// Cron expression, with optional seconds field or descriptors.
	report, err := work.NewCron("nightly-report", "0 30 2 * * *", buildReport)

Both advance their due time before running the body, so a slow body does
not delay the next slot, and both cancel the body's context when Stop is
called.
*/
package work
