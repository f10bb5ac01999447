// Package orchestrator implements the execution lifecycle.
//
// The Manager coordinates executions by:
//   - Snapshotting a schema into a pending execution with one step per node
//   - Driving the state machine (pending, running, completed/failed/cancelled)
//   - Walking the graph on a background worker after Start returns
//   - Publishing every lifecycle and step transition to the event bus
//   - Sweeping old executions on Cleanup
//
// Errors raised during a walk never reach a caller; they are stored on the
// execution record and announced with an execution:failed event.
package orchestrator
