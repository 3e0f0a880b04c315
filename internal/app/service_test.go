package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/hylla/nexus/internal/domain"
)

type fakeRepo struct {
	projects      map[string]domain.Project
	members       map[string][]domain.Membership
	tasks         map[string]domain.Task
	comments      map[string][]domain.Comment
	events        map[string][]domain.ChangeEvent
	notifications []domain.Notification
	applyErr      error
	applyCalls    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		projects: map[string]domain.Project{},
		members:  map[string][]domain.Membership{},
		tasks:    map[string]domain.Task{},
		comments: map[string][]domain.Comment{},
		events:   map[string][]domain.ChangeEvent{},
	}
}

func (f *fakeRepo) CreateProject(_ context.Context, p domain.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeRepo) GetProject(_ context.Context, id string) (domain.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) AddProjectMember(_ context.Context, m domain.Membership) error {
	f.members[m.ProjectID] = append(f.members[m.ProjectID], m)
	return nil
}

func (f *fakeRepo) ListProjectMembers(_ context.Context, projectID string) ([]domain.Membership, error) {
	return slices.Clone(f.members[projectID]), nil
}

func (f *fakeRepo) CreateTask(_ context.Context, t domain.Task) error {
	f.tasks[t.ID] = t
	f.events[t.ID] = append(f.events[t.ID], domain.ChangeEvent{TaskID: t.ID, Operation: domain.ChangeOperationCreate})
	return nil
}

func (f *fakeRepo) UpdateTask(_ context.Context, t domain.Task) error {
	if _, ok := f.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	t.LastBlockReason = ""
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeRepo) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) ListTasks(_ context.Context, projectID string, includeDeleted bool) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.ProjectID != projectID {
			continue
		}
		if !includeDeleted && t.DeletedAt != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ApplyTransition(_ context.Context, t domain.Task, comment *domain.Comment) error {
	f.applyCalls++
	if f.applyErr != nil {
		return f.applyErr
	}
	prev, ok := f.tasks[t.ID]
	if !ok || prev.DeletedAt != nil {
		return ErrNotFound
	}
	t.LastBlockReason = ""
	f.tasks[t.ID] = t
	if comment != nil {
		f.comments[t.ID] = append(f.comments[t.ID], *comment)
	}
	return nil
}

func (f *fakeRepo) ListTaskComments(_ context.Context, taskID string) ([]domain.Comment, error) {
	return slices.Clone(f.comments[taskID]), nil
}

func (f *fakeRepo) LatestTaskComment(_ context.Context, taskID string) (domain.Comment, error) {
	latest, ok := domain.LatestComment(f.comments[taskID])
	if !ok {
		return domain.Comment{}, ErrNotFound
	}
	return latest, nil
}

func (f *fakeRepo) ListTaskChangeEvents(_ context.Context, taskID string, limit int) ([]domain.ChangeEvent, error) {
	events := f.events[taskID]
	if len(events) > limit {
		events = events[:limit]
	}
	return slices.Clone(events), nil
}

func (f *fakeRepo) ListNotifications(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	out := []domain.Notification{}
	for _, n := range f.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeNotifier struct {
	err     error
	batches [][]domain.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, batch []domain.Notification) error {
	f.batches = append(f.batches, batch)
	return f.err
}

func (f *fakeNotifier) sent() []domain.Notification {
	out := []domain.Notification{}
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(any, ...any) {}
func (l *recordingLogger) Info(any, ...any)  {}
func (l *recordingLogger) Warn(msg any, _ ...any) {
	l.warnings = append(l.warnings, fmt.Sprint(msg))
}
func (l *recordingLogger) Error(any, ...any) {}

var (
	leadActor   = domain.Actor{ID: "lead1", Role: domain.RoleLead}
	memberU1    = domain.Actor{ID: "u1", Role: domain.RoleMember}
	memberU2    = domain.Actor{ID: "u2", Role: domain.RoleMember}
	fixedTestTS = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
)

type serviceFixture struct {
	repo     *fakeRepo
	notifier *fakeNotifier
	logger   *recordingLogger
	svc      *Service
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:     newFakeRepo(),
		notifier: &fakeNotifier{},
		logger:   &recordingLogger{},
		now:      fixedTestTS,
	}
	idCounter := 0
	f.svc = NewService(f.repo, func() string {
		idCounter++
		return fmt.Sprintf("id-%d", idCounter)
	}, func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	}, ServiceConfig{Notifier: f.notifier, Logger: f.logger})

	f.repo.projects["p1"] = domain.Project{ID: "p1", Name: "Capstone"}
	f.repo.members["p1"] = []domain.Membership{
		{ProjectID: "p1", UserID: "lead1", Role: domain.RoleLead},
		{ProjectID: "p1", UserID: "lead2", Role: domain.RoleLead},
		{ProjectID: "p1", UserID: "u1", Role: domain.RoleMember},
	}
	f.repo.tasks["t1"] = domain.Task{ID: "t1", ProjectID: "p1", Title: "Wire API", AssigneeID: "u1", Status: domain.StatusInProgress, UpdatedAt: fixedTestTS}
	f.repo.tasks["t2"] = domain.Task{ID: "t2", ProjectID: "p1", Title: "Write docs", AssigneeID: "u1", Status: domain.StatusTodo, UpdatedAt: fixedTestTS}
	return f
}

func TestTransitionBlockedPersistsReasonAndNotifiesLeads(t *testing.T) {
	f := newServiceFixture(t)
	result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{
		Actor:  memberU1,
		TaskID: "t1",
		Status: domain.StatusBlocked,
		Reason: "Waiting for API",
	})
	if err != nil {
		t.Fatalf("TransitionTaskStatus() error = %v", err)
	}
	if !result.Ok() {
		t.Fatalf("expected ok, got %#v", result)
	}
	if result.Task.Status != domain.StatusBlocked || result.Task.LastBlockReason != "Waiting for API" {
		t.Fatalf("unexpected task %#v", result.Task)
	}
	if got := f.repo.tasks["t1"].Status; got != domain.StatusBlocked {
		t.Fatalf("stored status = %q", got)
	}
	comments := f.repo.comments["t1"]
	if len(comments) != 1 || comments[0].Body != "Waiting for API" || comments[0].AuthorID != "u1" {
		t.Fatalf("unexpected comments %#v", comments)
	}
	sent := f.notifier.sent()
	if len(sent) != 2 {
		t.Fatalf("expected one notification per lead, got %#v", sent)
	}
	recipients := []string{sent[0].RecipientID, sent[1].RecipientID}
	if !slices.Equal(recipients, []string{"lead1", "lead2"}) {
		t.Fatalf("recipients = %v", recipients)
	}
	for _, n := range sent {
		if n.TaskID != "t1" || n.Message != `Task "Wire API" is blocked: Waiting for API` {
			t.Fatalf("unexpected notification %#v", n)
		}
	}
}

func TestTransitionRejectsNonOwner(t *testing.T) {
	f := newServiceFixture(t)
	before := f.repo.tasks["t1"]
	result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{
		Actor:  memberU2,
		TaskID: "t1",
		Status: domain.StatusDone,
	})
	if err != nil {
		t.Fatalf("TransitionTaskStatus() error = %v", err)
	}
	if result.Ok() || result.Code != domain.RejectNotOwner {
		t.Fatalf("expected not_owner, got %#v", result)
	}
	if result.Message != "You can only update your own tasks" {
		t.Fatalf("message = %q", result.Message)
	}
	if f.repo.tasks["t1"] != before || f.repo.applyCalls != 0 {
		t.Fatal("task must be unchanged")
	}
}

func TestTransitionMissingReasonWritesNothing(t *testing.T) {
	f := newServiceFixture(t)
	for _, reason := range []string{"", "   ", "\n\t"} {
		result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{
			Actor:  memberU1,
			TaskID: "t2",
			Status: domain.StatusBlocked,
			Reason: reason,
		})
		if err != nil {
			t.Fatalf("TransitionTaskStatus() error = %v", err)
		}
		if result.Code != domain.RejectMissingReason {
			t.Fatalf("reason %q: code = %q", reason, result.Code)
		}
	}
	if f.repo.tasks["t2"].Status != domain.StatusTodo {
		t.Fatal("task must stay TODO")
	}
	if len(f.repo.comments["t2"]) != 0 || len(f.notifier.batches) != 0 {
		t.Fatal("no comment or notification expected")
	}
}

func TestTransitionNoOpHasNoSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	before := f.repo.tasks["t1"]
	result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{
		Actor:  memberU1,
		TaskID: "t1",
		Status: domain.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("TransitionTaskStatus() error = %v", err)
	}
	if !result.Ok() || !result.Unchanged {
		t.Fatalf("expected unchanged ok, got %#v", result)
	}
	after := f.repo.tasks["t1"]
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Status != before.Status {
		t.Fatalf("task changed: before %#v after %#v", before, after)
	}
	if f.repo.applyCalls != 0 || len(f.repo.comments["t1"]) != 0 {
		t.Fatal("no-op must not write")
	}
}

func TestTransitionSameStatusReasonOutsideBlockedIsNoOp(t *testing.T) {
	f := newServiceFixture(t)
	before := f.repo.tasks["t1"]
	result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{
		Actor:  memberU1,
		TaskID: "t1",
		Status: domain.StatusInProgress,
		Reason: "note",
	})
	if err != nil {
		t.Fatalf("TransitionTaskStatus() error = %v", err)
	}
	if !result.Ok() || !result.Unchanged {
		t.Fatalf("expected unchanged ok, got %#v", result)
	}
	if after := f.repo.tasks["t1"]; !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("updated_at bumped: before %s after %s", before.UpdatedAt, after.UpdatedAt)
	}
	if f.repo.applyCalls != 0 || len(f.repo.comments["t1"]) != 0 || len(f.repo.events["t1"]) != 0 {
		t.Fatal("stray reason must not write")
	}
}

func TestTransitionReblockAppendsComment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for _, reason := range []string{"Waiting for API", "Waiting for review"} {
		result, err := f.svc.TransitionTaskStatus(ctx, TransitionInput{Actor: memberU1, TaskID: "t1", Status: domain.StatusBlocked, Reason: reason})
		if err != nil || !result.Ok() {
			t.Fatalf("block %q: result %#v err %v", reason, result, err)
		}
	}
	if got := len(f.repo.comments["t1"]); got != 2 {
		t.Fatalf("comments = %d, want 2", got)
	}
	task, err := f.svc.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.LastBlockReason != "Waiting for review" {
		t.Fatalf("current reason = %q", task.LastBlockReason)
	}
	reasons, err := f.svc.ListBlockReasons(ctx, "t1")
	if err != nil {
		t.Fatalf("ListBlockReasons() error = %v", err)
	}
	if len(reasons) != 2 || reasons[0].Body != "Waiting for API" {
		t.Fatalf("unexpected history %#v", reasons)
	}
	if got := len(f.notifier.batches); got != 2 {
		t.Fatalf("notification batches = %d, want 2", got)
	}
}

func TestTransitionNotificationFailureIsSwallowed(t *testing.T) {
	f := newServiceFixture(t)
	f.notifier.err = errors.New("redis down")
	result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{
		Actor:  leadActor,
		TaskID: "t2",
		Status: domain.StatusBlocked,
		Reason: "Vendor outage",
	})
	if err != nil {
		t.Fatalf("TransitionTaskStatus() error = %v", err)
	}
	if !result.Ok() {
		t.Fatalf("expected ok despite notifier failure, got %#v", result)
	}
	if f.repo.tasks["t2"].Status != domain.StatusBlocked || len(f.repo.comments["t2"]) != 1 {
		t.Fatal("status and comment must stay committed")
	}
	if len(f.logger.warnings) != 1 || f.logger.warnings[0] != "notification delivery failed" {
		t.Fatalf("warnings = %v", f.logger.warnings)
	}
}

func TestTransitionLeavingBlockedClearsReason(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if _, err := f.svc.TransitionTaskStatus(ctx, TransitionInput{Actor: memberU1, TaskID: "t1", Status: domain.StatusBlocked, Reason: "x"}); err != nil {
		t.Fatalf("block error = %v", err)
	}
	result, err := f.svc.TransitionTaskStatus(ctx, TransitionInput{Actor: memberU1, TaskID: "t1", Status: domain.StatusDone})
	if err != nil || !result.Ok() {
		t.Fatalf("unblock result %#v err %v", result, err)
	}
	if result.Task.LastBlockReason != "" {
		t.Fatalf("reason = %q, want empty", result.Task.LastBlockReason)
	}
	if len(f.repo.comments["t1"]) != 1 {
		t.Fatal("leaving BLOCKED must not add comments")
	}
}

func TestTransitionNotFound(t *testing.T) {
	f := newServiceFixture(t)
	deleted := f.repo.tasks["t2"]
	ts := fixedTestTS
	deleted.DeletedAt = &ts
	f.repo.tasks["t2"] = deleted

	for _, id := range []string{"missing", "t2", " "} {
		result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{Actor: leadActor, TaskID: id, Status: domain.StatusDone})
		if err != nil {
			t.Fatalf("TransitionTaskStatus(%q) error = %v", id, err)
		}
		if result.Code != domain.RejectNotFound {
			t.Fatalf("TransitionTaskStatus(%q) code = %q", id, result.Code)
		}
	}
}

func TestTransitionDeletedBetweenLoadAndWrite(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.applyErr = fmt.Errorf("update: %w", ErrNotFound)
	result, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{Actor: leadActor, TaskID: "t1", Status: domain.StatusDone})
	if err != nil {
		t.Fatalf("TransitionTaskStatus() error = %v", err)
	}
	if result.Code != domain.RejectNotFound {
		t.Fatalf("code = %q", result.Code)
	}
}

func TestTransitionStoreFailureIsError(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.applyErr = errors.New("disk full")
	_, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{Actor: leadActor, TaskID: "t1", Status: domain.StatusDone})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(f.notifier.batches) != 0 {
		t.Fatal("no notification after failed commit")
	}
}

func TestTransitionRejectsMalformedActor(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.TransitionTaskStatus(context.Background(), TransitionInput{Actor: domain.Actor{Role: domain.RoleLead}, TaskID: "t1", Status: domain.StatusDone})
	if !errors.Is(err, domain.ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
}

func TestCreateTaskRequiresLead(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateTask(ctx, CreateTaskInput{Actor: memberU1, ProjectID: "p1", Title: "x"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	task, err := f.svc.CreateTask(ctx, CreateTaskInput{Actor: leadActor, ProjectID: "p1", Title: " Plan sprint ", AssigneeID: "u1"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Status != domain.StatusTodo || task.CreatedBy != "lead1" || task.Title != "Plan sprint" {
		t.Fatalf("unexpected task %#v", task)
	}
	if _, err := f.svc.CreateTask(ctx, CreateTaskInput{Actor: leadActor, ProjectID: "nope", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown project, got %v", err)
	}
}

func TestSoftDeleteAndRestoreLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.DeleteTask(ctx, memberU1, "t1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	deleted, err := f.svc.DeleteTask(ctx, leadActor, "t1")
	if err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatal("expected deleted_at to be set")
	}
	board, err := f.svc.ListTasks(ctx, ListTasksInput{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(board) != 1 || board[0].ID != "t2" {
		t.Fatalf("deleted task must be hidden, got %#v", board)
	}
	if _, err := f.svc.GetTask(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted task, got %v", err)
	}
	if _, err := f.svc.DeleteTask(ctx, leadActor, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}

	restored, err := f.svc.RestoreTask(ctx, leadActor, "t1")
	if err != nil {
		t.Fatalf("RestoreTask() error = %v", err)
	}
	if restored.DeletedAt != nil || restored.Status != domain.StatusInProgress {
		t.Fatalf("restored task should return to its last column, got %#v", restored)
	}
	if _, err := f.svc.RestoreTask(ctx, leadActor, "t1"); !errors.Is(err, domain.ErrTaskNotDeleted) {
		t.Fatalf("expected ErrTaskNotDeleted, got %v", err)
	}
	all, err := f.svc.ListTasks(ctx, ListTasksInput{ProjectID: "p1", IncludeDeleted: true})
	if err != nil || len(all) != 2 {
		t.Fatalf("ListTasks(include deleted) = %#v, %v", all, err)
	}
}

func TestCreateProjectEnrollsLead(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	project, err := f.svc.CreateProject(ctx, CreateProjectInput{Actor: leadActor, Name: "Thesis"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	leads, err := f.svc.ProjectLeads(ctx, project.ID)
	if err != nil {
		t.Fatalf("ProjectLeads() error = %v", err)
	}
	if !slices.Equal(leads, []string{"lead1"}) {
		t.Fatalf("leads = %v", leads)
	}
	if _, err := f.svc.AddProjectMember(ctx, AddProjectMemberInput{Actor: leadActor, ProjectID: project.ID, UserID: "u9", Role: domain.RoleLead}); err != nil {
		t.Fatalf("AddProjectMember() error = %v", err)
	}
	leads, _ = f.svc.ProjectLeads(ctx, project.ID)
	if !slices.Equal(leads, []string{"lead1", "u9"}) {
		t.Fatalf("leads = %v", leads)
	}
	if _, err := f.svc.AddProjectMember(ctx, AddProjectMemberInput{Actor: memberU1, ProjectID: project.ID, UserID: "u3", Role: domain.RoleMember}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListNotificationsAndActivityLimits(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if _, err := f.svc.ListNotifications(ctx, "lead1", -1); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := f.svc.ListNotifications(ctx, " ", 10); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	f.repo.notifications = []domain.Notification{{ID: "n1", RecipientID: "lead1"}, {ID: "n2", RecipientID: "lead2"}}
	inbox, err := f.svc.ListNotifications(ctx, "lead1", 0)
	if err != nil || len(inbox) != 1 || inbox[0].ID != "n1" {
		t.Fatalf("inbox = %#v, err %v", inbox, err)
	}
	if _, err := f.svc.ListTaskActivity(ctx, "missing", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotifiersJoinFailures(t *testing.T) {
	ok := &fakeNotifier{}
	bad := &fakeNotifier{err: errors.New("boom")}
	batch := []domain.Notification{{ID: "n1"}}
	err := Notifiers{ok, nil, bad}.Notify(context.Background(), batch)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(ok.batches) != 1 || len(bad.batches) != 1 {
		t.Fatal("every notifier must receive the batch")
	}
	if err := (Notifiers{ok}).Notify(context.Background(), batch); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
}
