package domain

import (
	"time"
)

// EventType names a progress notification
type EventType string

const (
	EventTypeConnected          EventType = "connected"
	EventTypeStatus             EventType = "status"
	EventTypeHeartbeat          EventType = "heartbeat"
	EventTypeExecutionStarted   EventType = "execution:started"
	EventTypeExecutionCompleted EventType = "execution:completed"
	EventTypeExecutionFailed    EventType = "execution:failed"
	EventTypeExecutionCancelled EventType = "execution:cancelled"
	EventTypeNodeStarted        EventType = "node:started"
	EventTypeNodeCompleted      EventType = "node:completed"
	EventTypeNodeFailed         EventType = "node:failed"
	EventTypeStepUpdated        EventType = "step:updated"
	EventTypeLoopIteration      EventType = "loop:iteration"
)

// IsTerminal reports whether the event closes an execution
func (t EventType) IsTerminal() bool {
	return t == EventTypeExecutionCompleted ||
		t == EventTypeExecutionFailed ||
		t == EventTypeExecutionCancelled
}

// Event is a progress notification tagged with an execution id
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Payload flattens the event into the wire object sent to stream observers
func (e Event) Payload() map[string]interface{} {
	payload := make(map[string]interface{}, len(e.Data)+4)
	for k, v := range e.Data {
		payload[k] = v
	}
	payload["type"] = e.Type
	payload["execution_id"] = e.ExecutionID
	payload["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	if e.NodeID != "" {
		payload["node_id"] = e.NodeID
	}
	return payload
}

// NewStatusEvent snapshots an execution into the status event that opens a
// progress stream
func NewStatusEvent(e *PipelineExecution, at time.Time) Event {
	data := map[string]interface{}{
		"status":         e.Status,
		"schema_id":      e.SchemaID,
		"execution_mode": e.ExecutionMode,
		"steps":          e.Steps,
		"started_at":     e.StartedAt,
		"completed_at":   e.CompletedAt,
	}
	if e.OutputData != nil {
		data["output_data"] = e.OutputData
	}
	if e.ErrorMessage != nil {
		data["error_message"] = *e.ErrorMessage
	}
	if e.CancelReason != "" {
		data["cancel_reason"] = e.CancelReason
	}
	return Event{
		Type:        EventTypeStatus,
		ExecutionID: e.ID,
		Timestamp:   at,
		Data:        data,
	}
}
