package models

import "time"

// Observer event types pushed over the websocket feed
const (
	EventConnect          = "connect"
	EventHeartbeat        = "heartbeat"
	EventProcessCompleted = "process_completed"
	EventProcessFailed    = "process_failed"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      string      `json:"type" validate:"required,oneof=connect heartbeat process_completed process_failed"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	ClientID  string      `json:"client_id"`
}

// ProcessEvent is the payload of a process_completed or process_failed message.
// It carries the summary only; findings stay with the caller that asked for them.
type ProcessEvent struct {
	Plugin         string `json:"plugin"`
	TraceID        string `json:"trace_id,omitempty"`
	EntryCount     int    `json:"entry_count"`
	ProcessedCount int    `json:"processed_count"`
	FindingCount   int    `json:"finding_count"`
	SeverityLevel  string `json:"severity_level,omitempty"`
	FaultCode      string `json:"fault_code,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
}
