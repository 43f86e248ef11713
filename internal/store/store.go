// Package store defines the audit trail of dispatches and its record types.
package store

import (
	"context"
	"time"
)

// Dispatch statuses.
const (
	StatusOK      = "ok"      // every action succeeded
	StatusPartial = "partial" // at least one action failed
	StatusDropped = "dropped" // the event never reached the actions
)

// DispatchRecord is one audited dispatch.
type DispatchRecord struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	EventID   string          `json:"event_id,omitempty"`
	Digest    string          `json:"digest,omitempty"`
	Size      uint64          `json:"size"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Attempts  []AttemptRecord `json:"attempts"`
}

// AttemptRecord is one action attempt within a dispatch.
type AttemptRecord struct {
	Action   string        `json:"action"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Panicked bool          `json:"panicked,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// AuditStore persists dispatch records.
type AuditStore interface {
	Record(ctx context.Context, rec *DispatchRecord) error
	Get(ctx context.Context, id string) (*DispatchRecord, error)
	Recent(ctx context.Context, params PaginationParams) (*PaginatedResult[DispatchRecord], error)
	Close() error
}
