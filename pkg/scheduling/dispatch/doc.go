/*
Package dispatch provides the hand-off queue between the deadline scheduler
and the workers of a work pool.

The queue holds work that is due now, in FIFO order, and a registry of
parked workers. Enqueue wakes exactly one parked worker; there is no
broadcast. A worker that finds the queue empty parks for at most
WaitInterval before checking again, so a release is always observed within
one interval even if a wakeup is lost.

Work that is not yet due is never placed in the FIFO. Return and the
pool's registration path route it to a Deferrer, normally the pool's
deadline scheduler:

	q, err := dispatch.New(dispatch.Config{Deferrer: scheduler})
	...
	w, ok := q.TryTake(ctx) // blocks until work, release or ctx done
	if ok {
		_ = w.Start(ctx)
		q.Return(w)
	}

After Release every parked and future TryTake returns (nil, false), and
Enqueue and Return drop their argument.
*/
package dispatch
