/*
Package workpool runs periodic work on a fixed set of dedicated workers.

A Pool owns one dispatch queue, one deadline scheduler and up to WorkerCount
workers. Work carries its own due time. Work that is due when registered or
returned goes straight to the dispatch queue; everything else waits in the
deadline scheduler until it is due. Workers take due work in FIFO order, run
it and return it, so an item that advances its due time after each run is
executed again and again.

# Basic Usage

	pool, err := workpool.New("reports", 2)
	if err != nil {
		log.Fatal(err)
	}

	_ = pool.AddWork(work.Every("refresh", time.Minute, refresh))
	_ = pool.AddWork(work.Every("cleanup", time.Hour, cleanup))

	if err := pool.Start(); err != nil {
		log.Fatal(err)
	}

	// On shutdown:
	_ = pool.Stop() // does not block
	<-pool.Done()   // wait for running work, if needed

# Worker Count

Start launches min(WorkerCount, registered work) workers. Work registered
after Start is scheduled normally but does not add workers.

# Configuration

	pool, err := workpool.NewWithConfig(workpool.Config{
		Name:         "sync",
		WorkerCount:  4,
		WaitInterval: 500 * time.Millisecond,
		Logger:       logger,
		Metrics:      metrics.Default(),
	})

Zero fields take the defaults listed on Config. Factory creates several
pools that share a logger and metrics registry.

# Failure Handling

Errors and panics from work are logged and counted; they never stop a
worker. Stop cancels the context of running work and calls its Stop method,
joining any errors those calls report. If the deadline scheduler hits an
internal fault it logs it and exits; Err reports the fault.
*/
package workpool
