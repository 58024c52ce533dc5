package events

import "time"

// EventType identifies what happened.
type EventType string

const (
	ScanQueued     EventType = "scan.queued"
	ScanStarted    EventType = "scan.started"
	ScanFinished   EventType = "scan.finished"
	ScanFailed     EventType = "scan.failed"
	FindingCreated EventType = "finding.created"
	RepairExecuted EventType = "repair.executed"
	SessionOpened  EventType = "session.opened"
	SessionClosed  EventType = "session.closed"
)

// Event is one lifecycle signal from the scan or repair pipeline.
type Event struct {
	Type      EventType
	ScanID    int64
	SessionID string
	Path      string
	Message   string
	Timestamp time.Time
}
