package board

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/hylla/nexus/internal/domain"
)

func TestMoveCommitsOnSuccess(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t2", domain.StatusInProgress)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)

	out := r.Move(context.Background(), MoveIntent{TaskID: "t1", ToStatus: domain.StatusInProgress, ToIndex: 0})
	wantKind(t, out, OutcomeCommitted)
	if out.Task.Status != domain.StatusInProgress || out.Refresh {
		t.Fatalf("unexpected outcome %#v", out)
	}

	wantColumn(t, r.Committed(), domain.StatusInProgress, "t1", "t2")
	if !reflect.DeepEqual(r.Committed(), r.Working()) {
		t.Fatal("expected working to equal committed once settled")
	}
	if r.InFlight("t1") {
		t.Fatal("expected no move in flight")
	}
	want := []transportCall{{TaskID: "t1", Status: domain.StatusInProgress}}
	if !slices.Equal(transport.calls, want) {
		t.Fatalf("calls = %#v, want %#v", transport.calls, want)
	}
}

func TestMoveAppliesOptimisticallyBeforeResponse(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo)}
	r := NewReconciler(newFakeTransport(tasks...), tasks)

	out, call := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone})
	if call == nil {
		t.Fatal("expected a remote call")
	}
	wantKind(t, out, OutcomePending)
	if call.Intent.FromStatus != domain.StatusTodo {
		t.Fatalf("FromStatus = %q, want TODO", call.Intent.FromStatus)
	}
	if !r.InFlight("t1") {
		t.Fatal("expected t1 in flight")
	}

	wantColumn(t, r.Working(), domain.StatusDone, "t1")
	wantColumn(t, r.Committed(), domain.StatusTodo, "t1")
}

func TestMoveRollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantRefresh bool
	}{
		{
			name:        "not owner",
			err:         &RejectionError{Code: domain.RejectNotOwner, Message: "nope"},
			wantMessage: "You can only update your own tasks",
		},
		{
			name:        "not found",
			err:         &RejectionError{Code: domain.RejectNotFound},
			wantMessage: "Task no longer exists. Refresh the board.",
			wantRefresh: true,
		},
		{
			name:        "network",
			err:         fmt.Errorf("%w: dial tcp: connection refused", ErrNetwork),
			wantMessage: "could not reach server",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tasks := []domain.Task{boardTask("t1", domain.StatusTodo)}
			transport := newFakeTransport(tasks...)
			transport.failNext("t1", tc.err)
			r := NewReconciler(transport, tasks)
			before := r.Working()

			out := r.Move(context.Background(), MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone})
			wantKind(t, out, OutcomeRolledBack)
			if !errors.Is(out.Err, tc.err) {
				t.Fatalf("err = %v, want %v", out.Err, tc.err)
			}
			if out.Message != tc.wantMessage {
				t.Fatalf("message = %q, want %q", out.Message, tc.wantMessage)
			}
			if out.Refresh != tc.wantRefresh {
				t.Fatalf("refresh = %t, want %t", out.Refresh, tc.wantRefresh)
			}
			if !reflect.DeepEqual(before, r.Working()) {
				t.Fatalf("working = %#v, want rollback to %#v", r.Working(), before)
			}
			if r.InFlight("t1") {
				t.Fatal("expected no move in flight after rollback")
			}
		})
	}
}

func TestLatestRequestWins(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)
	ctx := context.Background()

	_, first := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusInProgress})
	_, second := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone})
	if first == nil || second == nil {
		t.Fatal("expected two remote calls")
	}
	wantColumn(t, r.Working(), domain.StatusDone, "t1")

	secondTask, secondErr := r.Execute(ctx, second)
	firstTask, firstErr := r.Execute(ctx, first)

	wantKind(t, r.Complete(second, secondTask, secondErr), OutcomeCommitted)

	out := r.Complete(first, firstTask, firstErr)
	wantKind(t, out, OutcomeDiscarded)
	if !out.Refresh {
		t.Fatal("expected refresh: the superseded move landed after the newest one settled")
	}

	wantColumn(t, r.Committed(), domain.StatusDone, "t1")
	if !reflect.DeepEqual(r.Committed(), r.Working()) {
		t.Fatal("expected working to equal committed")
	}
}

func TestStaleSuccessThenFailureRequestsRefresh(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)
	ctx := context.Background()

	_, first := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusInProgress})
	_, second := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone})

	firstTask, firstErr := r.Execute(ctx, first)
	if firstErr != nil {
		t.Fatalf("Execute() error = %v", firstErr)
	}
	out := r.Complete(first, firstTask, firstErr)
	wantKind(t, out, OutcomeDiscarded)
	if out.Refresh {
		t.Fatal("newer move still pending, no refresh yet")
	}

	out = r.Complete(second, domain.Task{}, fmt.Errorf("%w: timeout", ErrNetwork))
	wantKind(t, out, OutcomeRolledBack)
	if !out.Refresh {
		t.Fatal("expected refresh: server applied the superseded move")
	}
	wantColumn(t, r.Working(), domain.StatusTodo, "t1")

	r.Refresh([]domain.Task{transport.tasks["t1"]})
	wantColumn(t, r.Working(), domain.StatusInProgress, "t1")
}

func TestIndependentTasksReconcileSeparately(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t2", domain.StatusTodo)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)
	ctx := context.Background()

	_, c1 := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone})
	_, c2 := r.Plan(MoveIntent{TaskID: "t2", ToStatus: domain.StatusInProgress})

	wantKind(t, r.Complete(c1, domain.Task{}, &RejectionError{Code: domain.RejectNotOwner}), OutcomeRolledBack)
	wantColumn(t, r.Working(), domain.StatusTodo, "t1")
	wantColumn(t, r.Working(), domain.StatusInProgress, "t2")

	task, err := r.Execute(ctx, c2)
	wantKind(t, r.Complete(c2, task, err), OutcomeCommitted)
	wantColumn(t, r.Committed(), domain.StatusInProgress, "t2")
}

func TestSameColumnMoveIsLocalReorder(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t2", domain.StatusTodo)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)

	out := r.Move(context.Background(), MoveIntent{TaskID: "t2", ToStatus: domain.StatusTodo, ToIndex: 0})
	wantKind(t, out, OutcomeReordered)
	wantColumn(t, r.Working(), domain.StatusTodo, "t2", "t1")
	if n := transport.callCount(); n != 0 {
		t.Fatalf("expected no remote call, got %d", n)
	}
}

func TestReorderWhileInFlightKeepsPendingMove(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t2", domain.StatusDone)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)

	_, call := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone, ToIndex: 1})
	wantColumn(t, r.Working(), domain.StatusDone, "t2", "t1")

	out, reorder := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone, ToIndex: 0})
	if reorder != nil {
		t.Fatal("reorder must not issue a call")
	}
	wantKind(t, out, OutcomeReordered)
	wantColumn(t, r.Working(), domain.StatusDone, "t1", "t2")

	task, err := r.Execute(context.Background(), call)
	wantKind(t, r.Complete(call, task, err), OutcomeCommitted)
	wantColumn(t, r.Committed(), domain.StatusDone, "t1", "t2")
}

func TestPlanRejectsInvalidMoves(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo)}
	r := NewReconciler(newFakeTransport(tasks...), tasks)

	out, call := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.Status("ARCHIVED")})
	if call != nil {
		t.Fatal("invalid status must not issue a call")
	}
	wantKind(t, out, OutcomeInvalid)
	if !errors.Is(out.Err, domain.ErrTransitionRejected) {
		t.Fatalf("err = %v, want transition rejected", out.Err)
	}

	out, call = r.Plan(MoveIntent{TaskID: "ghost", ToStatus: domain.StatusDone})
	if call != nil {
		t.Fatal("unknown card must not issue a call")
	}
	if !errors.Is(out.Err, ErrUnknownCard) || !out.Refresh {
		t.Fatalf("expected unknown card with refresh, got %#v", out)
	}
}

func TestCloseDiscardsLateResponses(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo)}
	transport := newFakeTransport(tasks...)
	r := NewReconciler(transport, tasks)

	_, call := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone})
	r.Close()

	task, err := r.Execute(context.Background(), call)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	wantKind(t, r.Complete(call, task, err), OutcomeDiscarded)
	if r.InFlight("t1") {
		t.Fatal("expected nothing in flight after Close")
	}

	out, next := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusInProgress})
	if next != nil {
		t.Fatal("closed reconciler must not issue calls")
	}
	wantKind(t, out, OutcomeDiscarded)
}

func TestRefreshReplaysPendingMoves(t *testing.T) {
	tasks := []domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t2", domain.StatusTodo)}
	r := NewReconciler(newFakeTransport(tasks...), tasks)

	if _, call := r.Plan(MoveIntent{TaskID: "t1", ToStatus: domain.StatusDone}); call == nil {
		t.Fatal("expected a remote call")
	}

	r.Refresh([]domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t3", domain.StatusInProgress)})
	working := r.Working()
	wantColumn(t, working, domain.StatusDone, "t1")
	wantColumn(t, working, domain.StatusInProgress, "t3")
	if _, _, ok := working.Find("t2"); ok {
		t.Fatal("expected t2 dropped by refresh")
	}
}

func TestRejectionErrorFormatting(t *testing.T) {
	err := &RejectionError{Code: domain.RejectNotOwner, Message: "You can only update your own tasks"}
	if got := err.Error(); got != "not_owner: You can only update your own tasks" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, domain.ErrTransitionRejected) {
		t.Fatal("expected rejection to match ErrTransitionRejected")
	}
}
