package board

import (
	"context"

	"github.com/hylla/nexus/internal/app"
	"github.com/hylla/nexus/internal/domain"
)

// Source loads authoritative board data.
type Source interface {
	ListBoard(ctx context.Context, projectID string) ([]domain.Task, error)
	ListBlockReasons(ctx context.Context, taskID string) ([]domain.Comment, error)
}

// LocalTransport drives an in-process app.Service as one fixed actor.
type LocalTransport struct {
	service *app.Service
	actor   domain.Actor
}

// NewLocalTransport constructs a transport over a local service.
func NewLocalTransport(service *app.Service, actor domain.Actor) *LocalTransport {
	return &LocalTransport{service: service, actor: actor}
}

// TransitionStatus implements Transport.
func (t *LocalTransport) TransitionStatus(ctx context.Context, taskID string, status domain.Status, reason string) (domain.Task, error) {
	result, err := t.service.TransitionTaskStatus(ctx, app.TransitionInput{
		Actor:  t.actor,
		TaskID: taskID,
		Status: status,
		Reason: reason,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if !result.Ok() {
		return domain.Task{}, &RejectionError{Code: result.Code, Message: result.Message}
	}
	return result.Task, nil
}

// ListBoard implements Source.
func (t *LocalTransport) ListBoard(ctx context.Context, projectID string) ([]domain.Task, error) {
	return t.service.ListTasks(ctx, app.ListTasksInput{ProjectID: projectID})
}

// ListBlockReasons implements Source.
func (t *LocalTransport) ListBlockReasons(ctx context.Context, taskID string) ([]domain.Comment, error) {
	return t.service.ListBlockReasons(ctx, taskID)
}
