/*
Package deadline holds work that is not yet due and promotes it when it is.

A Scheduler runs one goroutine. Each pass it drains the ingress stack that
Submit pushes onto, sorts its pending work by due time, promotes every item
that is due and then sleeps exactly until the next item could become due.
Submit and Stop wake the loop early, so a newly submitted item with a
nearer due time is never held back by a long sleep already in progress.

	s := deadline.New(deadline.Config{Logger: logger})
	_ = s.OnPromote(queue.Enqueue)
	_ = s.Start()
	defer s.Stop()

	s.Submit(item) // promoted once item.DueAt() has passed

The pending list is a local variable of the loop goroutine; only the
lock-free ingress is shared with producers. A panic raised during a pass
(from a work item's DueAt or from the promotion callback) stops the loop.
Err then reports ErrSchedulerFault and the loop is not restarted.
*/
package deadline
