/*
Package scheduling groups the components that run periodic work.

  - workpool: Pool, the entry point; owns everything below
  - dispatch: Queue of due work shared by a pool's workers
  - deadline: Scheduler holding work until it is due
  - worker: Worker, one goroutine executing work from a queue

Work flows through them in a loop:

	AddWork -> due? -> dispatch.Queue -> worker runs it -> Return
	              \                                          |
	               -> deadline.Scheduler <- not due again? <-
	                        |
	                        -> promotes to dispatch.Queue when due

Pool:

	pool, err := workpool.New("reports", 4)
	if err != nil {
		return err
	}
	_ = pool.AddWork(work.Every("refresh", time.Minute, refresh))
	_ = pool.Start()

	_ = pool.Stop()
	<-pool.Done()

The lower-level packages are usable on their own, for example to feed a
dispatch.Queue from a custom source, but most callers only need workpool.
*/
package scheduling
