/*
Package worker runs work items on one dedicated goroutine.

A Worker is bound to a single Source for its whole life. It takes due work
from the source, runs it synchronously and hands it back, so the source can
either requeue it or defer it until it is due again:

	w := worker.New("reports-0", worker.Config{Logger: logger})
	if err := w.Start(queue); err != nil {
		return err
	}
	...
	_ = w.Stop()  // does not wait
	<-w.Done()    // wait for the goroutine, if needed

Errors and panics raised by a work item are logged and swallowed; they never
stop the worker. Stop cancels the context passed to the running item and
calls the item's Stop method, returning whatever that call reports.
*/
package worker
