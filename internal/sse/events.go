// Package sse implements Server-Sent Events for live dispatch updates.
package sse

import (
	"time"

	"github.com/dropwatch/dropwatch/internal/store"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventDispatchCompleted is sent after every action ran for a file.
	EventDispatchCompleted EventType = "dispatch.completed"
	// EventDispatchDropped is sent when a file never reached the actions.
	EventDispatchDropped EventType = "dispatch.dropped"

	// EventConnected greets a new client with its client ID.
	EventConnected EventType = "connected"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	ID        string    `json:"id,omitempty"` // sent as the SSE id field
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// DispatchEventData is the payload of dispatch events.
type DispatchEventData struct {
	DispatchID string `json:"dispatch_id"`
	Path       string `json:"path"`
	EventID    string `json:"event_id,omitempty"`
	Digest     string `json:"digest,omitempty"`
	Size       uint64 `json:"size"`
	Status     string `json:"status"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewDispatchEvent creates a dispatch event from an audit record.
func NewDispatchEvent(rec *store.DispatchRecord) Event {
	typ := EventDispatchCompleted
	if rec.Status == store.StatusDropped {
		typ = EventDispatchDropped
	}

	failed := 0
	for _, a := range rec.Attempts {
		if !a.OK {
			failed++
		}
	}

	return Event{
		ID:   rec.ID,
		Type: typ,
		Data: DispatchEventData{
			DispatchID: rec.ID,
			Path:       rec.Path,
			EventID:    rec.EventID,
			Digest:     rec.Digest,
			Size:       rec.Size,
			Status:     rec.Status,
			Failed:     failed,
			DurationMs: rec.Duration.Milliseconds(),
			Error:      rec.Error,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
