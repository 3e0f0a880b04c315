package domain

import (
	"strings"
	"time"
)

type Task struct {
	ID              string
	ProjectID       string
	Title           string
	Description     string
	AssigneeID      string
	Status          Status
	CreatedBy       string
	UpdatedBy       string
	LastBlockReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

type TaskInput struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	AssigneeID  string
	Status      Status
	CreatedBy   string
}

func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)

	if in.ID == "" || in.ProjectID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if !in.Status.Valid() {
		return Task{}, ErrInvalidStatus
	}
	// A new task cannot start blocked: there is no reason comment yet.
	if in.Status == StatusBlocked {
		return Task{}, ErrInvalidStatus
	}

	now = now.UTC()
	return Task{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
		Status:      in.Status,
		CreatedBy:   in.CreatedBy,
		UpdatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SetStatus writes the status. Re-applying the current status still bumps UpdatedAt.
func (t *Task) SetStatus(status Status, now time.Time) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	t.Status = status
	if status != StatusBlocked {
		t.LastBlockReason = ""
	}
	t.UpdatedAt = now.UTC()
	return nil
}

func (t *Task) SoftDelete(now time.Time) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	ts := now.UTC()
	t.DeletedAt = &ts
	t.UpdatedAt = ts
	return nil
}

func (t *Task) Restore(now time.Time) error {
	if !t.IsDeleted() {
		return ErrTaskNotDeleted
	}
	t.DeletedAt = nil
	t.UpdatedAt = now.UTC()
	return nil
}

func (t Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsOwnedBy reports whether the actor may drive this task's status.
func (t Task) IsOwnedBy(actor Actor) bool {
	return actor.IsLead() || (t.AssigneeID != "" && t.AssigneeID == actor.ID)
}
