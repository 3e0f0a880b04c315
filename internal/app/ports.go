package app

import (
	"context"
	"errors"

	"github.com/hylla/nexus/internal/domain"
)

// Repository is the durable task store.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	AddProjectMember(context.Context, domain.Membership) error
	ListProjectMembers(context.Context, string) ([]domain.Membership, error)

	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	ListTasks(context.Context, string, bool) ([]domain.Task, error)
	// ApplyTransition writes the task status and, when comment is non-nil, appends it
	// in the same transaction. Writes to soft-deleted tasks return ErrNotFound.
	ApplyTransition(context.Context, domain.Task, *domain.Comment) error
	ListTaskComments(context.Context, string) ([]domain.Comment, error)
	LatestTaskComment(context.Context, string) (domain.Comment, error)
	ListTaskChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)

	ListNotifications(context.Context, string, int) ([]domain.Notification, error)
}

// Notifier delivers notifications produced after a committed transition.
type Notifier interface {
	Notify(context.Context, []domain.Notification) error
}

// Notifiers fans one batch out to every notifier and joins their failures.
type Notifiers []Notifier

// Notify implements Notifier.
func (n Notifiers) Notify(ctx context.Context, batch []domain.Notification) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logger is the structured logger used by the service.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}
