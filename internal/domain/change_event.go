package domain

import "time"

// ChangeOperation describes a persisted activity operation for a task.
type ChangeOperation string

// ChangeOperation values used by the activity ledger.
const (
	ChangeOperationCreate  ChangeOperation = "create"
	ChangeOperationStatus  ChangeOperation = "status"
	ChangeOperationBlock   ChangeOperation = "block"
	ChangeOperationDelete  ChangeOperation = "soft_delete"
	ChangeOperationRestore ChangeOperation = "restore"
)

// ChangeEvent represents a single activity-log entry for a task.
type ChangeEvent struct {
	ID         int64
	ProjectID  string
	TaskID     string
	Operation  ChangeOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}
