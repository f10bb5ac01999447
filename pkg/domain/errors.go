package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound matches any NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest matches any InvalidRequestError
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCycleDetected matches any CycleError
	ErrCycleDetected = errors.New("cycle detected")
)

// NotFoundError reports an unknown schema or execution id
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidRequestError reports a request that violates the state machine or
// carries a malformed argument. It never has side effects.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Message
}

// Is makes errors.Is(err, ErrInvalidRequest) hold
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// NewInvalidRequest formats an InvalidRequestError
func NewInvalidRequest(format string, args ...interface{}) error {
	return &InvalidRequestError{Message: fmt.Sprintf(format, args...)}
}

// CycleError is raised by the executor when it re-enters a node still on the
// walk stack
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Is makes errors.Is(err, ErrCycleDetected) hold
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// NodeExecutionError wraps the failure of a single node
type NodeExecutionError struct {
	NodeID   string
	NodeType NodeType
	Cause    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.NodeType, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// ExternalExecutorError wraps a failure of the injected transform executor
type ExternalExecutorError struct {
	Executor string
	Cause    error
}

func (e *ExternalExecutorError) Error() string {
	return fmt.Sprintf("external executor %s failed: %v", e.Executor, e.Cause)
}

func (e *ExternalExecutorError) Unwrap() error {
	return e.Cause
}
