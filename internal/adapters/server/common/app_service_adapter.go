package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/nexus/internal/app"
	"github.com/hylla/nexus/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ListBoard lists the live tasks of one project with their current block reasons.
func (a *AppServiceAdapter) ListBoard(ctx context.Context, projectID string) ([]Task, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("project_id is required: %w", ErrInvalidRequest)
	}
	tasks, err := a.service.ListTasks(ctx, app.ListTasksInput{ProjectID: projectID})
	if err != nil {
		return nil, mapAppError("list board", err)
	}
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, mapDomainTask(task))
	}
	return out, nil
}

// GetTask returns one live task.
func (a *AppServiceAdapter) GetTask(ctx context.Context, taskID string) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	task, err := a.service.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, mapAppError("get task", err)
	}
	return mapDomainTask(task), nil
}

// CreateTask creates one task on behalf of a lead.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, actor Actor, in CreateTaskRequest) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return Task{}, err
	}
	var status domain.Status
	if raw := strings.TrimSpace(in.Status); raw != "" {
		parsed, err := domain.ParseStatus(raw)
		if err != nil {
			return Task{}, mapAppError("create task", err)
		}
		status = parsed
	}
	task, err := a.service.CreateTask(ctx, app.CreateTaskInput{
		Actor:       domainActor,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
		Status:      status,
	})
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	return mapDomainTask(task), nil
}

// TransitionTaskStatus runs one status change. Business rejections come back as *RejectionError.
func (a *AppServiceAdapter) TransitionTaskStatus(ctx context.Context, actor Actor, in TransitionRequest) (TransitionResult, error) {
	if err := a.ready(); err != nil {
		return TransitionResult{}, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return TransitionResult{}, err
	}
	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return TransitionResult{}, newRejectionError(domain.RejectInvalidStatus)
	}
	result, err := a.service.TransitionTaskStatus(ctx, app.TransitionInput{
		Actor:  domainActor,
		TaskID: strings.TrimSpace(in.TaskID),
		Status: status,
		Reason: in.Comment,
	})
	if err != nil {
		return TransitionResult{}, mapAppError("transition task status", err)
	}
	if !result.Ok() {
		return TransitionResult{}, newRejectionError(result.Code)
	}
	return TransitionResult{
		Task:      mapDomainTask(result.Task),
		Unchanged: result.Unchanged,
	}, nil
}

// DeleteTask soft-deletes one task.
func (a *AppServiceAdapter) DeleteTask(ctx context.Context, actor Actor, taskID string) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return Task{}, err
	}
	task, err := a.service.DeleteTask(ctx, domainActor, strings.TrimSpace(taskID))
	if err != nil {
		return Task{}, mapAppError("delete task", err)
	}
	return mapDomainTask(task), nil
}

// RestoreTask restores one soft-deleted task.
func (a *AppServiceAdapter) RestoreTask(ctx context.Context, actor Actor, taskID string) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return Task{}, err
	}
	task, err := a.service.RestoreTask(ctx, domainActor, strings.TrimSpace(taskID))
	if err != nil {
		return Task{}, mapAppError("restore task", err)
	}
	return mapDomainTask(task), nil
}

// ListBlockReasons lists the block-reason history of one task.
func (a *AppServiceAdapter) ListBlockReasons(ctx context.Context, taskID string) ([]Comment, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	comments, err := a.service.ListBlockReasons(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return nil, mapAppError("list block reasons", err)
	}
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, Comment{
			ID:        c.ID,
			TaskID:    c.TaskID,
			AuthorID:  c.AuthorID,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	return out, nil
}

// ListTaskActivity lists the activity ledger of one task.
func (a *AppServiceAdapter) ListTaskActivity(ctx context.Context, taskID string, limit int) ([]ChangeEvent, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	events, err := a.service.ListTaskActivity(ctx, strings.TrimSpace(taskID), limit)
	if err != nil {
		return nil, mapAppError("list task activity", err)
	}
	out := make([]ChangeEvent, 0, len(events))
	for _, e := range events {
		out = append(out, ChangeEvent{
			ID:         e.ID,
			ProjectID:  e.ProjectID,
			TaskID:     e.TaskID,
			Operation:  string(e.Operation),
			ActorID:    e.ActorID,
			Metadata:   e.Metadata,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}

// ListNotifications lists the calling actor's inbox.
func (a *AppServiceAdapter) ListNotifications(ctx context.Context, actor Actor, limit int) ([]Notification, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return nil, err
	}
	notifications, err := a.service.ListNotifications(ctx, domainActor.ID, limit)
	if err != nil {
		return nil, mapAppError("list notifications", err)
	}
	out := make([]Notification, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, Notification{
			ID:          n.ID,
			ProjectID:   n.ProjectID,
			TaskID:      n.TaskID,
			RecipientID: n.RecipientID,
			Kind:        string(n.Kind),
			Message:     n.Message,
			CreatedAt:   n.CreatedAt,
		})
	}
	return out, nil
}

// CreateProject creates one project with the calling lead enrolled.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, actor Actor, in CreateProjectRequest) (Project, error) {
	if err := a.ready(); err != nil {
		return Project{}, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return Project{}, err
	}
	project, err := a.service.CreateProject(ctx, app.CreateProjectInput{
		Actor:       domainActor,
		Name:        in.Name,
		Description: in.Description,
	})
	if err != nil {
		return Project{}, mapAppError("create project", err)
	}
	return Project{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}, nil
}

// AddProjectMember adds or re-roles one project member.
func (a *AppServiceAdapter) AddProjectMember(ctx context.Context, actor Actor, in AddProjectMemberRequest) (Membership, error) {
	if err := a.ready(); err != nil {
		return Membership{}, err
	}
	domainActor, err := toDomainActor(actor)
	if err != nil {
		return Membership{}, err
	}
	membership, err := a.service.AddProjectMember(ctx, app.AddProjectMemberInput{
		Actor:     domainActor,
		ProjectID: strings.TrimSpace(in.ProjectID),
		UserID:    in.UserID,
		Role:      domain.Role(in.Role),
	})
	if err != nil {
		return Membership{}, mapAppError("add project member", err)
	}
	return Membership{
		ProjectID: membership.ProjectID,
		UserID:    membership.UserID,
		Role:      string(membership.Role),
		CreatedAt: membership.CreatedAt,
	}, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return errors.New("app service adapter is not configured")
	}
	return nil
}

// toDomainActor validates the injected identity; any malformed actor is unauthenticated.
func toDomainActor(actor Actor) (domain.Actor, error) {
	out, err := domain.NewActor(actor.ID, domain.Role(actor.Role))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("actor: %w", errors.Join(ErrUnauthenticated, err))
	}
	return out, nil
}

func mapDomainTask(task domain.Task) Task {
	return Task{
		ID:              task.ID,
		ProjectID:       task.ProjectID,
		Title:           task.Title,
		Description:     task.Description,
		AssigneeID:      task.AssigneeID,
		Status:          string(task.Status),
		LastBlockReason: task.LastBlockReason,
		CreatedBy:       task.CreatedBy,
		UpdatedBy:       task.UpdatedBy,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
		DeletedAt:       task.DeletedAt,
	}
}

// newRejectionError maps one reject code onto its transport sentinel.
func newRejectionError(code domain.RejectCode) *RejectionError {
	kind := ErrConflict
	switch code {
	case domain.RejectNotOwner:
		kind = ErrForbidden
	case domain.RejectMissingReason, domain.RejectInvalidStatus:
		kind = ErrInvalidRequest
	case domain.RejectNotFound:
		kind = ErrNotFound
	}
	return NewRejectionError(string(code), code.Message(), kind)
}

// mapAppError maps app/domain errors onto transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrForbidden):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrForbidden, err))
	case errors.Is(err, domain.ErrInvalidActor):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnauthenticated, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidBody),
		errors.Is(err, app.ErrInvalidLimit):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, domain.ErrTaskDeleted),
		errors.Is(err, domain.ErrTaskNotDeleted):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
