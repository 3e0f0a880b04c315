package app

import (
	"context"
	"errors"
	"strings"

	"github.com/hylla/nexus/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TransitionInput holds input values for status transitions.
type TransitionInput struct {
	Actor  domain.Actor
	TaskID string
	Status domain.Status
	Reason string
}

// TransitionResult is either Ok(task) or Rejected(code, message).
type TransitionResult struct {
	Task    domain.Task
	Code    domain.RejectCode
	Message string
	// Unchanged marks a no-op: the task already had the status and no reason was given.
	Unchanged bool
}

// Ok reports whether the transition succeeded.
func (r TransitionResult) Ok() bool {
	return r.Code == ""
}

func okResult(task domain.Task) TransitionResult {
	return TransitionResult{Task: task}
}

func rejectedResult(code domain.RejectCode) TransitionResult {
	return TransitionResult{Code: code, Message: code.Message()}
}

// TransitionTaskStatus validates and commits one status change.
//
// The status write and the BLOCKED reason comment share one transaction. Lead
// notifications run after that commit and their failure is logged only.
// Business rejections come back as a Rejected result; the error return is
// reserved for infrastructure failures and malformed actors.
func (s *Service) TransitionTaskStatus(ctx context.Context, in TransitionInput) (TransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "task.transition", trace.WithAttributes(
		attribute.String("task.id", in.TaskID),
		attribute.String("task.requested_status", string(in.Status)),
		attribute.Bool("task.reason_provided", strings.TrimSpace(in.Reason) != ""),
	))
	defer span.End()

	result, err := s.transition(ctx, span, in)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !result.Ok():
		span.SetAttributes(attribute.String("task.reject_code", string(result.Code)))
		span.SetStatus(codes.Ok, "")
	default:
		span.SetAttributes(attribute.Bool("task.unchanged", result.Unchanged))
		span.SetStatus(codes.Ok, "")
	}
	return result, err
}

func (s *Service) transition(ctx context.Context, span trace.Span, in TransitionInput) (TransitionResult, error) {
	actor, err := domain.NewActor(in.Actor.ID, in.Actor.Role)
	if err != nil {
		return TransitionResult{}, err
	}
	span.SetAttributes(attribute.String("actor.role", string(actor.Role)))

	task, err := s.loadLiveTask(ctx, in.TaskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rejectedResult(domain.RejectNotFound), nil
		}
		return TransitionResult{}, err
	}

	decision := domain.ValidateTransition(domain.TransitionRequest{
		Actor:  actor,
		Task:   task,
		Status: in.Status,
		Reason: in.Reason,
	})
	switch decision.Code {
	case "":
	case domain.RejectNoOp:
		task, err = s.withBlockReason(ctx, task)
		if err != nil {
			return TransitionResult{}, err
		}
		result := okResult(task)
		result.Unchanged = true
		return result, nil
	default:
		s.logger.Debug("transition rejected", "task_id", task.ID, "actor_id", actor.ID, "code", decision.Code)
		return rejectedResult(decision.Code), nil
	}

	now := s.clock()
	from := task.Status
	if err := task.SetStatus(in.Status, now); err != nil {
		return TransitionResult{}, err
	}
	task.UpdatedBy = actor.ID

	var reason *domain.Comment
	if in.Status == domain.StatusBlocked {
		comment, err := domain.NewComment(domain.CommentInput{
			ID:       s.idGen(),
			TaskID:   task.ID,
			AuthorID: actor.ID,
			Body:     in.Reason,
		}, now)
		if err != nil {
			return TransitionResult{}, err
		}
		reason = &comment
	}

	if err := s.repo.ApplyTransition(ctx, task, reason); err != nil {
		if errors.Is(err, ErrNotFound) {
			return rejectedResult(domain.RejectNotFound), nil
		}
		return TransitionResult{}, err
	}
	s.logger.Info("task status changed", "task_id", task.ID, "actor_id", actor.ID, "from", from, "to", task.Status)

	if reason != nil {
		task.LastBlockReason = reason.Body
		s.notifyLeads(ctx, span, task, reason.Body)
	}
	return okResult(task), nil
}

// notifyLeads runs after the transition commit. Failures are logged and swallowed.
func (s *Service) notifyLeads(ctx context.Context, span trace.Span, task domain.Task, reason string) {
	if s.notifier == nil {
		return
	}
	// The transition already committed; a caller hanging up must not cancel delivery.
	ctx = context.WithoutCancel(ctx)

	leads, err := s.ProjectLeads(ctx, task.ProjectID)
	if err != nil {
		s.reportNotifyFailure(span, task, err)
		return
	}
	if len(leads) == 0 {
		s.logger.Debug("no project leads to notify", "task_id", task.ID, "project_id", task.ProjectID)
		return
	}

	message := domain.BlockedMessage(task.Title, reason)
	now := s.clock()
	batch := make([]domain.Notification, 0, len(leads))
	for _, leadID := range leads {
		n, err := domain.NewNotification(domain.NotificationInput{
			ID:          s.idGen(),
			ProjectID:   task.ProjectID,
			TaskID:      task.ID,
			RecipientID: leadID,
			Kind:        domain.NotificationKindTaskBlocked,
			Message:     message,
		}, now)
		if err != nil {
			s.reportNotifyFailure(span, task, err)
			return
		}
		batch = append(batch, n)
	}
	if err := s.notifier.Notify(ctx, batch); err != nil {
		s.reportNotifyFailure(span, task, err)
		return
	}
	span.AddEvent("notification.delivered", trace.WithAttributes(attribute.Int("notification.count", len(batch))))
}

func (s *Service) reportNotifyFailure(span trace.Span, task domain.Task, err error) {
	err = errors.Join(ErrNotifierFailed, err)
	s.logger.Warn("notification delivery failed", "task_id", task.ID, "project_id", task.ProjectID, "err", err)
	span.AddEvent("notification.delivery_failed", trace.WithAttributes(attribute.String("error", err.Error())))
}
