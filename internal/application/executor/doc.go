// Package executor turns a pipeline schema into a dependency graph and runs it.
//
// The walk is depth-first with memoisation: a node runs once all of its
// dependencies have completed. Re-entering a node that is still on the walk
// stack raises a cycle error instead of looping. Each of the seven node kinds
// has its own implementation of the sealed node interface.
//
// Progress is reported through an Observer, which the lifecycle manager uses
// to update step records and publish events.
package executor
