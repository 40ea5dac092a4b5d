package events

import "time"

// EventType identifies the kind of event emitted by the runtime.
type EventType string

const (
	EventContextCreated  EventType = "context.created"
	EventContextUpdated  EventType = "context.updated"
	EventContextFeedback EventType = "context.feedback"
	EventMatrixBuilt     EventType = "matrix.built"
	EventExportWritten   EventType = "export.written"
	EventTrackerIssue    EventType = "tracker.issue"
	EventPipelineStart   EventType = "pipeline.start"
	EventPipelineStep    EventType = "pipeline.step"
	EventPipelineEnd     EventType = "pipeline.end"
)

// Event represents a single runtime event.
type Event struct {
	Seq       uint64        `json:"seq"` // assigned by the bus, increasing
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      any           `json:"data"`
	StepIndex int           `json:"step_index,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// ContextData is the payload of context.* events.
type ContextData struct {
	ContextID string `json:"context_id"`
	Version   int    `json:"version"`
}

// ExportData is the payload of export.written events.
type ExportData struct {
	Format    string `json:"format"`
	TestCases int    `json:"test_cases"`
	Path      string `json:"path"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// MatrixData is the payload of matrix.built events.
type MatrixData struct {
	Requirements int `json:"requirements"`
	Covered      int `json:"covered"`
}

// PipelineData is the payload of pipeline.* events.
type PipelineData struct {
	Step   string `json:"step"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}
