package domain

import (
	"errors"
	"testing"
)

func TestValidateTransitionRules(t *testing.T) {
	member := Actor{ID: "u1", Role: RoleMember}
	stranger := Actor{ID: "u2", Role: RoleMember}
	lead := Actor{ID: "lead", Role: RoleLead}
	inProgress := Task{ID: "t1", AssigneeID: "u1", Status: StatusInProgress}
	blocked := Task{ID: "t1", AssigneeID: "u1", Status: StatusBlocked}
	unassigned := Task{ID: "t3", Status: StatusTodo}

	cases := []struct {
		name string
		req  TransitionRequest
		want RejectCode
	}{
		{"assignee moves forward", TransitionRequest{Actor: member, Task: inProgress, Status: StatusDone}, ""},
		{"same status without reason is no-op", TransitionRequest{Actor: member, Task: inProgress, Status: StatusInProgress}, RejectNoOp},
		{"same status whitespace reason is no-op", TransitionRequest{Actor: member, Task: inProgress, Status: StatusInProgress, Reason: "  "}, RejectNoOp},
		{"same status reason ignored outside blocked", TransitionRequest{Actor: member, Task: inProgress, Status: StatusInProgress, Reason: "note"}, RejectNoOp},
		{"no-op wins over ownership", TransitionRequest{Actor: stranger, Task: inProgress, Status: StatusInProgress}, RejectNoOp},
		{"stranger rejected", TransitionRequest{Actor: stranger, Task: inProgress, Status: StatusDone}, RejectNotOwner},
		{"ownership checked before reason", TransitionRequest{Actor: stranger, Task: inProgress, Status: StatusBlocked}, RejectNotOwner},
		{"member cannot claim unassigned", TransitionRequest{Actor: member, Task: unassigned, Status: StatusInProgress}, RejectNotOwner},
		{"lead moves any task", TransitionRequest{Actor: lead, Task: unassigned, Status: StatusDone}, ""},
		{"block without reason", TransitionRequest{Actor: member, Task: inProgress, Status: StatusBlocked, Reason: " \t"}, RejectMissingReason},
		{"block with reason", TransitionRequest{Actor: member, Task: inProgress, Status: StatusBlocked, Reason: "Waiting for API"}, ""},
		{"re-block with new reason", TransitionRequest{Actor: member, Task: blocked, Status: StatusBlocked, Reason: "Still waiting"}, ""},
		{"blocked straight to done", TransitionRequest{Actor: member, Task: blocked, Status: StatusDone}, ""},
		{"done back to todo", TransitionRequest{Actor: lead, Task: Task{Status: StatusDone}, Status: StatusTodo}, ""},
		{"unknown status", TransitionRequest{Actor: lead, Task: inProgress, Status: Status("LATER")}, RejectInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateTransition(tc.req)
			if got.Code != tc.want {
				t.Fatalf("code = %q, want %q", got.Code, tc.want)
			}
			if got.Accepted() != (tc.want == "") {
				t.Fatalf("accepted = %t for code %q", got.Accepted(), got.Code)
			}
		})
	}
}

func TestValidateTransitionOwnershipHoldsForEveryStatus(t *testing.T) {
	stranger := Actor{ID: "u2", Role: RoleMember}
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			if from == to {
				continue
			}
			task := Task{ID: "t1", AssigneeID: "u1", Status: from}
			got := ValidateTransition(TransitionRequest{Actor: stranger, Task: task, Status: to, Reason: "r"})
			if got.Code != RejectNotOwner {
				t.Fatalf("%s -> %s: code = %q, want not_owner", from, to, got.Code)
			}
		}
	}
}

func TestTransitionGraphIsFree(t *testing.T) {
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			e, ok := transitionEdges[[2]Status{from, to}]
			if !ok || !e.allowed {
				t.Fatalf("%s -> %s should be allowed", from, to)
			}
			if e.requiresReason != (to == StatusBlocked) {
				t.Fatalf("%s -> %s requiresReason = %t", from, to, e.requiresReason)
			}
		}
	}
}

func TestDecisionErr(t *testing.T) {
	if err := (Decision{}).Err(); err != nil {
		t.Fatalf("accepted decision err = %v", err)
	}
	err := Decision{Code: RejectNotOwner}.Err()
	if !errors.Is(err, ErrTransitionRejected) {
		t.Fatalf("expected ErrTransitionRejected, got %v", err)
	}
	if RejectNotOwner.Message() != "You can only update your own tasks" {
		t.Fatalf("unexpected message %q", RejectNotOwner.Message())
	}
}
