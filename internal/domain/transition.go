package domain

import (
	"fmt"
	"strings"
)

// RejectCode classifies a refused transition.
type RejectCode string

const (
	RejectNoOp          RejectCode = "no_op"
	RejectNotOwner      RejectCode = "not_owner"
	RejectMissingReason RejectCode = "missing_reason"
	RejectNotFound      RejectCode = "not_found"
	RejectInvalidStatus RejectCode = "invalid_status"
	RejectDenied        RejectCode = "transition_denied"
)

var rejectMessages = map[RejectCode]string{
	RejectNoOp:          "task already has the requested status",
	RejectNotOwner:      "You can only update your own tasks",
	RejectMissingReason: "a reason is required to block a task",
	RejectNotFound:      "task not found",
	RejectInvalidStatus: "unknown task status",
	RejectDenied:        "transition is not allowed",
}

// Message returns the user-facing text for the code.
func (c RejectCode) Message() string {
	if msg, ok := rejectMessages[c]; ok {
		return msg
	}
	return string(c)
}

// TransitionRequest is the input of ValidateTransition.
type TransitionRequest struct {
	Actor  Actor
	Task   Task
	Status Status
	Reason string
}

func (r TransitionRequest) trimmedReason() string {
	return strings.TrimSpace(r.Reason)
}

// Decision is the outcome of ValidateTransition.
type Decision struct {
	Code RejectCode
}

// Accepted reports whether the transition may execute.
func (d Decision) Accepted() bool {
	return d.Code == ""
}

// Err returns nil for accepted decisions.
func (d Decision) Err() error {
	if d.Accepted() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTransitionRejected, d.Code)
}

// edge describes one (from, to) pair of the status graph.
type edge struct {
	allowed        bool
	requiresReason bool
}

// transitionEdges is the full status graph. Every pair is allowed; entering BLOCKED
// needs a reason, including BLOCKED -> BLOCKED reason updates.
var transitionEdges = buildTransitionEdges()

func buildTransitionEdges() map[[2]Status]edge {
	edges := make(map[[2]Status]edge, len(boardStatuses)*len(boardStatuses))
	for _, from := range boardStatuses {
		for _, to := range boardStatuses {
			edges[[2]Status{from, to}] = edge{
				allowed:        true,
				requiresReason: to == StatusBlocked,
			}
		}
	}
	return edges
}

// transitionRule rejects with code when applies reports true. Rules run in order.
type transitionRule struct {
	code    RejectCode
	applies func(TransitionRequest) bool
}

var transitionRules = []transitionRule{
	{
		code: RejectInvalidStatus,
		applies: func(r TransitionRequest) bool {
			return !r.Status.Valid()
		},
	},
	{
		code: RejectNoOp,
		applies: func(r TransitionRequest) bool {
			if r.Status != r.Task.Status {
				return false
			}
			// A reason only changes anything on edges that record one.
			return r.trimmedReason() == "" || !transitionEdges[[2]Status{r.Task.Status, r.Status}].requiresReason
		},
	},
	{
		code: RejectNotOwner,
		applies: func(r TransitionRequest) bool {
			return !r.Task.IsOwnedBy(r.Actor)
		},
	},
	{
		code: RejectDenied,
		applies: func(r TransitionRequest) bool {
			return !transitionEdges[[2]Status{r.Task.Status, r.Status}].allowed
		},
	},
	{
		code: RejectMissingReason,
		applies: func(r TransitionRequest) bool {
			return transitionEdges[[2]Status{r.Task.Status, r.Status}].requiresReason && r.trimmedReason() == ""
		},
	},
}

// ValidateTransition decides whether actor may move task to the requested status.
// It performs no I/O.
func ValidateTransition(req TransitionRequest) Decision {
	for _, rule := range transitionRules {
		if rule.applies(req) {
			return Decision{Code: rule.code}
		}
	}
	return Decision{}
}
