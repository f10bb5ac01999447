// Package workers runs the engine's background work.
//
// The Pool owns one goroutine per started execution. Walks receive a context
// that is cancelled on Shutdown, which then waits for them to drain. There is
// no concurrency cap.
//
// The Janitor periodically sweeps executions older than the retention window.
package workers
