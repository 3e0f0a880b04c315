package board

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hylla/nexus/internal/domain"
)

var boardNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type transportCall struct {
	TaskID string
	Status domain.Status
	Reason string
}

// fakeTransport answers transitions by echoing the requested status, unless an error is queued.
type fakeTransport struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	errs  map[string]error
	calls []transportCall
}

func newFakeTransport(tasks ...domain.Task) *fakeTransport {
	f := &fakeTransport{tasks: map[string]domain.Task{}, errs: map[string]error{}}
	for _, task := range tasks {
		f.tasks[task.ID] = task
	}
	return f
}

func (f *fakeTransport) failNext(taskID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[taskID] = err
}

func (f *fakeTransport) TransitionStatus(_ context.Context, taskID string, status domain.Status, reason string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{TaskID: taskID, Status: status, Reason: reason})
	if err, ok := f.errs[taskID]; ok {
		delete(f.errs, taskID)
		return domain.Task{}, err
	}
	task := f.tasks[taskID]
	task.Status = status
	task.LastBlockReason = ""
	if status == domain.StatusBlocked {
		task.LastBlockReason = reason
	}
	task.UpdatedAt = task.UpdatedAt.Add(time.Minute)
	f.tasks[taskID] = task
	return task, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func boardTask(id string, status domain.Status) domain.Task {
	return domain.Task{
		ID:         id,
		ProjectID:  "p1",
		Title:      "Task " + id,
		AssigneeID: "u1",
		Status:     status,
		CreatedAt:  boardNow,
		UpdatedAt:  boardNow,
	}
}

func columnIDs(p Projection, status domain.Status) []string {
	cards := p.Column(status)
	out := make([]string, 0, len(cards))
	for _, card := range cards {
		out = append(out, card.ID)
	}
	return out
}

// wantColumn fails the test unless the column holds exactly ids, in order.
func wantColumn(t *testing.T, p Projection, status domain.Status, ids ...string) {
	t.Helper()
	if got := columnIDs(p, status); !slices.Equal(got, ids) {
		t.Fatalf("column %s = %v, want %v", status, got, ids)
	}
}

// wantKind fails the test unless the outcome has the expected kind.
func wantKind(t *testing.T, out Outcome, kind OutcomeKind) {
	t.Helper()
	if out.Kind != kind {
		t.Fatalf("outcome kind = %q, want %q (message %q, err %v)", out.Kind, kind, out.Message, out.Err)
	}
}
