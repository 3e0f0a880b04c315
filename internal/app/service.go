package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/nexus/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/hylla/nexus/internal/app"

// defaultListLimit bounds activity and inbox reads when callers pass zero.
const defaultListLimit = 50

// maxListLimit caps activity and inbox reads.
const maxListLimit = 500

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Notifier Notifier
	Logger   Logger
	Tracer   trace.Tracer
}

// Service runs the task workflow over a Repository.
type Service struct {
	repo     Repository
	notifier Notifier
	idGen    IDGenerator
	clock    Clock
	logger   Logger
	tracer   trace.Tracer
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = charmLog.New(io.Discard)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Service{
		repo:     repo,
		notifier: cfg.Notifier,
		idGen:    idGen,
		clock:    clock,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
	}
}

// CreateProjectInput holds input values for create project operations.
type CreateProjectInput struct {
	Actor       domain.Actor
	Name        string
	Description string
}

// CreateProject creates a project and enrolls the calling lead as its first lead.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	actor, err := requireLead(in.Actor)
	if err != nil {
		return domain.Project{}, err
	}
	now := s.clock()
	project, err := domain.NewProject(s.idGen(), in.Name, in.Description, now)
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	membership, err := domain.NewMembership(project.ID, actor.ID, domain.RoleLead, now)
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.AddProjectMember(ctx, membership); err != nil {
		return domain.Project{}, err
	}
	s.logger.Info("project created", "project_id", project.ID, "lead_id", actor.ID)
	return project, nil
}

// AddProjectMemberInput holds input values for membership changes.
type AddProjectMemberInput struct {
	Actor     domain.Actor
	ProjectID string
	UserID    string
	Role      domain.Role
}

// AddProjectMember adds or re-roles one project member.
func (s *Service) AddProjectMember(ctx context.Context, in AddProjectMemberInput) (domain.Membership, error) {
	if _, err := requireLead(in.Actor); err != nil {
		return domain.Membership{}, err
	}
	if _, err := s.repo.GetProject(ctx, in.ProjectID); err != nil {
		return domain.Membership{}, err
	}
	membership, err := domain.NewMembership(in.ProjectID, in.UserID, in.Role, s.clock())
	if err != nil {
		return domain.Membership{}, err
	}
	if err := s.repo.AddProjectMember(ctx, membership); err != nil {
		return domain.Membership{}, err
	}
	return membership, nil
}

// ProjectLeads returns the user ids holding the lead role in a project.
func (s *Service) ProjectLeads(ctx context.Context, projectID string) ([]string, error) {
	members, err := s.repo.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	leads := make([]string, 0, len(members))
	for _, m := range members {
		if m.Role == domain.RoleLead {
			leads = append(leads, m.UserID)
		}
	}
	slices.Sort(leads)
	return slices.Compact(leads), nil
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	Actor       domain.Actor
	ProjectID   string
	Title       string
	Description string
	AssigneeID  string
	Status      domain.Status
}

// CreateTask creates a task. Only leads may create tasks.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	actor, err := requireLead(in.Actor)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.repo.GetProject(ctx, in.ProjectID); err != nil {
		return domain.Task{}, err
	}
	task, err := domain.NewTask(domain.TaskInput{
		ID:          s.idGen(),
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
		Status:      in.Status,
		CreatedBy:   actor.ID,
	}, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.logger.Debug("task created", "task_id", task.ID, "project_id", task.ProjectID, "status", task.Status)
	return task, nil
}

// GetTask returns a live task with its current block reason.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.loadLiveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return s.withBlockReason(ctx, task)
}

// ListTasksInput holds input values for task listings.
type ListTasksInput struct {
	ProjectID      string
	IncludeDeleted bool
}

// ListTasks lists project tasks. Live listings are the board projection source.
func (s *Service) ListTasks(ctx context.Context, in ListTasksInput) ([]domain.Task, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	tasks, err := s.repo.ListTasks(ctx, projectID, in.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i], err = s.withBlockReason(ctx, tasks[i])
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// DeleteTask soft-deletes a task.
func (s *Service) DeleteTask(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	actor, err := requireLead(actor)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.SoftDelete(s.clock()); err != nil {
		if errors.Is(err, domain.ErrTaskDeleted) {
			return domain.Task{}, fmt.Errorf("delete task %q: %w", taskID, ErrNotFound)
		}
		return domain.Task{}, err
	}
	task.UpdatedBy = actor.ID
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.logger.Info("task soft-deleted", "task_id", task.ID, "actor_id", actor.ID)
	return task, nil
}

// RestoreTask clears the soft-delete marker. The task returns to its last status column.
func (s *Service) RestoreTask(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	actor, err := requireLead(actor)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.Restore(s.clock()); err != nil {
		return domain.Task{}, err
	}
	task.UpdatedBy = actor.ID
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.logger.Info("task restored", "task_id", task.ID, "actor_id", actor.ID, "status", task.Status)
	return s.withBlockReason(ctx, task)
}

// ListBlockReasons returns the append-only reason history of a task, oldest first.
func (s *Service) ListBlockReasons(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := s.loadLiveTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListTaskComments(ctx, taskID)
}

// ListTaskActivity returns the change-event ledger of a task, newest first.
func (s *Service) ListTaskActivity(ctx context.Context, taskID string, limit int) ([]domain.ChangeEvent, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListTaskChangeEvents(ctx, taskID, limit)
}

// ListNotifications returns a recipient's inbox, newest first.
func (s *Service) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, domain.ErrInvalidID
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.repo.ListNotifications(ctx, recipientID, limit)
}

// loadLiveTask maps soft-deleted tasks to ErrNotFound.
func (s *Service) loadLiveTask(ctx context.Context, taskID string) (domain.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.Task{}, ErrNotFound
	}
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.IsDeleted() {
		return domain.Task{}, fmt.Errorf("task %q is deleted: %w", taskID, ErrNotFound)
	}
	return task, nil
}

// withBlockReason fills LastBlockReason from the latest comment of a blocked task.
func (s *Service) withBlockReason(ctx context.Context, task domain.Task) (domain.Task, error) {
	task.LastBlockReason = ""
	if task.Status != domain.StatusBlocked {
		return task, nil
	}
	latest, err := s.repo.LatestTaskComment(ctx, task.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return task, nil
		}
		return domain.Task{}, err
	}
	task.LastBlockReason = latest.Body
	return task, nil
}

func requireLead(actor domain.Actor) (domain.Actor, error) {
	actor, err := domain.NewActor(actor.ID, actor.Role)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsLead() {
		return domain.Actor{}, fmt.Errorf("%w: lead role required", ErrForbidden)
	}
	return actor, nil
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, ErrInvalidLimit
	case limit == 0:
		return defaultListLimit, nil
	case limit > maxListLimit:
		return maxListLimit, nil
	default:
		return limit, nil
	}
}
