// Package domain holds the core types shared by the validator, the executor
// and the lifecycle manager: pipeline schemas, executions, steps, events and
// the error taxonomy.
package domain
