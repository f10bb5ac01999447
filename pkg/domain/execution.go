package domain

import (
	"time"
)

// ExecutionMode selects how transform nodes are executed
type ExecutionMode string

const (
	ExecutionModeMock ExecutionMode = "mock"
	ExecutionModeReal ExecutionMode = "real"
)

// Valid reports whether m is a supported mode
func (m ExecutionMode) Valid() bool {
	return m == ExecutionModeMock || m == ExecutionModeReal
}

// ExecutionStatus represents the lifecycle state of an execution
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted ||
		s == ExecutionStatusFailed ||
		s == ExecutionStatusCancelled
}

// Valid reports whether s is a known status
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// StepStatus represents the state of a single node within an execution
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// ExecutionContext carries the mode, free-form variables and trace id of a run
type ExecutionContext struct {
	Mode      ExecutionMode          `json:"mode"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	TraceID   string                 `json:"trace_id"`
}

// ExecutionStep is the runtime record of one node within an execution
type ExecutionStep struct {
	ID           string                 `json:"id"`
	ExecutionID  string                 `json:"execution_id"`
	NodeID       string                 `json:"node_id"`
	NodeType     NodeType               `json:"node_type"`
	NodeName     string                 `json:"node_name,omitempty"`
	Status       StepStatus             `json:"status"`
	InputData    map[string]interface{} `json:"input_data,omitempty"`
	OutputData   interface{}            `json:"output_data,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	StartedAt    *time.Time             `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
	DurationMs   *int64                 `json:"duration_ms"`
	RetryCount   int                    `json:"retry_count"`
}

// PipelineExecution is one run of a schema against concrete input
type PipelineExecution struct {
	ID               string                 `json:"id"`
	SchemaID         string                 `json:"schema_id"`
	SchemaVersion    int                    `json:"schema_version"`
	ExecutionMode    ExecutionMode          `json:"execution_mode"`
	Status           ExecutionStatus        `json:"status"`
	InputData        map[string]interface{} `json:"input_data"`
	OutputData       map[string]interface{} `json:"output_data"`
	ExecutionContext ExecutionContext       `json:"execution_context"`

	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	DurationMs  *int64     `json:"duration_ms"`

	ErrorMessage *string                `json:"error_message"`
	ErrorDetails map[string]interface{} `json:"error_details"`
	CancelReason string                 `json:"cancel_reason,omitempty"`

	Steps []*ExecutionStep `json:"steps"`

	// Schema is the snapshot taken at creation time
	Schema *PipelineSchema `json:"-"`
}

// Step returns the step record for a node
func (e *PipelineExecution) Step(nodeID string) (*ExecutionStep, bool) {
	for _, step := range e.Steps {
		if step.NodeID == nodeID {
			return step, true
		}
	}
	return nil, false
}

// Clone copies the execution record and its steps. Payload maps are shared:
// they are written once and never mutated afterwards.
func (e *PipelineExecution) Clone() *PipelineExecution {
	if e == nil {
		return nil
	}
	out := *e
	out.StartedAt = copyTime(e.StartedAt)
	out.CompletedAt = copyTime(e.CompletedAt)
	out.DurationMs = copyInt64(e.DurationMs)
	if e.ErrorMessage != nil {
		msg := *e.ErrorMessage
		out.ErrorMessage = &msg
	}
	out.Steps = make([]*ExecutionStep, len(e.Steps))
	for i, step := range e.Steps {
		s := *step
		s.StartedAt = copyTime(step.StartedAt)
		s.CompletedAt = copyTime(step.CompletedAt)
		s.DurationMs = copyInt64(step.DurationMs)
		out.Steps[i] = &s
	}
	return &out
}

// DurationSince returns the elapsed milliseconds between from and to
func DurationSince(from, to time.Time) *int64 {
	ms := to.Sub(from).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ms
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
