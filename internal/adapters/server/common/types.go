// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnauthenticated reports a missing or malformed injected actor.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden reports an actor without rights for the operation.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request that conflicts with current resource state.
var ErrConflict = errors.New("conflict")

// RejectionError carries a business rejection code through transport adapters.
type RejectionError struct {
	Code    string
	Message string
	kind    error
}

// NewRejectionError builds one rejection that unwraps to the given transport sentinel.
func NewRejectionError(code, message string, kind error) *RejectionError {
	return &RejectionError{Code: code, Message: message, kind: kind}
}

// Error implements error.
func (e *RejectionError) Error() string {
	return e.Message
}

// Unwrap exposes the transport sentinel the rejection maps onto.
func (e *RejectionError) Unwrap() error {
	return e.kind
}

// Actor is the caller identity injected by the fronting auth collaborator.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Task is the transport representation of one task.
type Task struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	AssigneeID      string     `json:"assignee_id,omitempty"`
	Status          string     `json:"status"`
	LastBlockReason string     `json:"last_block_reason,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	UpdatedBy       string     `json:"updated_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Comment is the transport representation of one block-reason comment.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeEvent is the transport representation of one activity-ledger entry.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	ProjectID  string            `json:"project_id"`
	TaskID     string            `json:"task_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notification is the transport representation of one inbox entry.
type Notification struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	TaskID      string    `json:"task_id"`
	RecipientID string    `json:"recipient_id"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is the transport representation of one project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership is the transport representation of one project membership.
type Membership struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// TransitionRequest captures one status change request.
type TransitionRequest struct {
	TaskID  string `json:"-"`
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// TransitionResult is the accepted outcome of one status change.
type TransitionResult struct {
	Task      Task `json:"task"`
	Unchanged bool `json:"unchanged"`
}

// CreateTaskRequest captures input for task creation.
type CreateTaskRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	Status      string `json:"status,omitempty"`
}

// CreateProjectRequest captures input for project creation.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AddProjectMemberRequest captures input for membership changes.
type AddProjectMemberRequest struct {
	ProjectID string `json:"-"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// TaskService exposes task reads and writes to transport adapters.
type TaskService interface {
	ListBoard(context.Context, string) ([]Task, error)
	GetTask(context.Context, string) (Task, error)
	CreateTask(context.Context, Actor, CreateTaskRequest) (Task, error)
	TransitionTaskStatus(context.Context, Actor, TransitionRequest) (TransitionResult, error)
	DeleteTask(context.Context, Actor, string) (Task, error)
	RestoreTask(context.Context, Actor, string) (Task, error)
	ListBlockReasons(context.Context, string) ([]Comment, error)
	ListTaskActivity(context.Context, string, int) ([]ChangeEvent, error)
}

// ProjectService exposes project administration to transport adapters.
type ProjectService interface {
	CreateProject(context.Context, Actor, CreateProjectRequest) (Project, error)
	AddProjectMember(context.Context, Actor, AddProjectMemberRequest) (Membership, error)
}

// NotificationReader exposes the caller's notification inbox.
type NotificationReader interface {
	ListNotifications(context.Context, Actor, int) ([]Notification, error)
}
