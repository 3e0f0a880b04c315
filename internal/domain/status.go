package domain

import (
	"slices"
	"strings"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusDone       Status = "DONE"
)

var boardStatuses = []Status{StatusTodo, StatusInProgress, StatusBlocked, StatusDone}

var statusLabels = map[Status]string{
	StatusTodo:       "To Do",
	StatusInProgress: "In Progress",
	StatusBlocked:    "Blocked",
	StatusDone:       "Done",
}

// Statuses returns every status in board column order.
func Statuses() []Status {
	return slices.Clone(boardStatuses)
}

// ParseStatus accepts canonical values plus lower-case and dashed spellings.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	status := Status(normalized)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Valid reports whether s is one of the board statuses.
func (s Status) Valid() bool {
	return slices.Contains(boardStatuses, s)
}

// Label returns the column heading for s.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Index returns the column position of s, or -1.
func (s Status) Index() int {
	return slices.Index(boardStatuses, s)
}
