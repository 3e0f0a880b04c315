package board

import (
	"context"
	"slices"
	"sync"

	"github.com/hylla/nexus/internal/domain"
)

// Transport issues status transitions to the task store.
type Transport interface {
	TransitionStatus(ctx context.Context, taskID string, status domain.Status, reason string) (domain.Task, error)
}

// OutcomeKind classifies the result of one reconciler operation.
type OutcomeKind string

const (
	OutcomeCommitted      OutcomeKind = "committed"
	OutcomeRolledBack     OutcomeKind = "rolled_back"
	OutcomeDiscarded      OutcomeKind = "discarded"
	OutcomeReordered      OutcomeKind = "reordered"
	OutcomeAwaitingReason OutcomeKind = "awaiting_reason"
	OutcomeGateRejected   OutcomeKind = "gate_rejected"
	OutcomeCanceled       OutcomeKind = "canceled"
	OutcomePending        OutcomeKind = "pending"
	OutcomeInvalid        OutcomeKind = "invalid"
)

// Outcome reports what one reconciler operation did to the board.
type Outcome struct {
	Kind    OutcomeKind
	TaskID  string
	Task    domain.Task
	Err     error
	Message string
	// Refresh asks the caller to reload the board from the server.
	Refresh bool
}

// Call is one remote transition planned by the reconciler.
type Call struct {
	token  uint64
	gate   bool
	Intent MoveIntent
	Reason string
}

type pendingMove struct {
	token  uint64
	intent MoveIntent
}

// Reconciler owns the committed projection plus the optimistic moves still in flight.
// The working projection is committed with every pending move replayed in request order.
type Reconciler struct {
	mu        sync.Mutex
	transport Transport
	committed Projection
	pending   map[string]pendingMove
	stale     map[string]bool
	gate      *gateState
	nextToken uint64
	closed    bool
}

// NewReconciler builds a reconciler over the given initial tasks.
func NewReconciler(transport Transport, tasks []domain.Task) *Reconciler {
	return &Reconciler{
		transport: transport,
		committed: NewProjection(tasks),
		pending:   map[string]pendingMove{},
		stale:     map[string]bool{},
	}
}

// Committed returns a copy of the server-confirmed projection.
func (r *Reconciler) Committed() Projection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed.Clone()
}

// Working returns a copy of the projection the user sees.
func (r *Reconciler) Working() Projection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workingLocked()
}

// InFlight reports whether a move for taskID awaits its response.
func (r *Reconciler) InFlight(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[taskID]
	return ok
}

func (r *Reconciler) workingLocked() Projection {
	if len(r.pending) == 0 {
		return r.committed.Clone()
	}
	moves := make([]pendingMove, 0, len(r.pending))
	for _, move := range r.pending {
		moves = append(moves, move)
	}
	slices.SortFunc(moves, func(a, b pendingMove) int {
		switch {
		case a.token < b.token:
			return -1
		case a.token > b.token:
			return 1
		default:
			return 0
		}
	})
	working := r.committed.Clone()
	for _, move := range moves {
		working, _ = ApplyMove(working, move.intent)
	}
	return working
}

// Move applies one move intent end to end: local reorder, block gate, or optimistic transition.
func (r *Reconciler) Move(ctx context.Context, intent MoveIntent) Outcome {
	out, call := r.Plan(intent)
	if call == nil {
		return out
	}
	task, err := r.Execute(ctx, call)
	return r.Complete(call, task, err)
}

// Plan applies the local half of a move. A non-nil Call must be passed to Execute and Complete.
func (r *Reconciler) Plan(intent MoveIntent) (Outcome, *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := Outcome{TaskID: intent.TaskID}
	if r.closed {
		outcome.Kind = OutcomeDiscarded
		return outcome, nil
	}
	if !intent.ToStatus.Valid() {
		outcome.Kind = OutcomeInvalid
		outcome.Err = &RejectionError{Code: domain.RejectInvalidStatus, Message: domain.RejectInvalidStatus.Message()}
		outcome.Message = messageFor(outcome.Err)
		return outcome, nil
	}
	card, _, ok := r.workingLocked().Find(intent.TaskID)
	if !ok {
		outcome.Kind = OutcomeInvalid
		outcome.Err = ErrUnknownCard
		outcome.Message = ErrUnknownCard.Error()
		outcome.Refresh = true
		return outcome, nil
	}
	intent.FromStatus = card.Status

	switch {
	case intent.ToStatus == card.Status:
		r.reorderLocked(intent)
		outcome.Kind = OutcomeReordered
		return outcome, nil
	case intent.ToStatus == domain.StatusBlocked:
		r.openGateLocked(PendingIntent{
			TaskID:     intent.TaskID,
			FromStatus: card.Status,
			ToIndex:    intent.ToIndex,
		})
		outcome.Kind = OutcomeAwaitingReason
		return outcome, nil
	}

	r.nextToken++
	r.pending[intent.TaskID] = pendingMove{token: r.nextToken, intent: intent}
	outcome.Kind = OutcomePending
	return outcome, &Call{token: r.nextToken, Intent: intent}
}

// reorderLocked moves a card inside its current column without a remote call.
func (r *Reconciler) reorderLocked(intent MoveIntent) {
	if move, ok := r.pending[intent.TaskID]; ok {
		move.intent.ToIndex = intent.ToIndex
		r.pending[intent.TaskID] = move
		return
	}
	r.committed, _ = ApplyMove(r.committed, intent)
}

// Execute runs the remote half of a planned call.
func (r *Reconciler) Execute(ctx context.Context, call *Call) (domain.Task, error) {
	status := call.Intent.ToStatus
	if call.gate {
		status = domain.StatusBlocked
	}
	return r.transport.TransitionStatus(ctx, call.Intent.TaskID, status, call.Reason)
}

// Complete folds one call response into the board. Responses superseded by a newer request
// for the same task, or arriving after Close, are discarded.
func (r *Reconciler) Complete(call *Call, task domain.Task, err error) Outcome {
	if call.gate {
		return r.completeGate(call, task, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := Outcome{TaskID: call.Intent.TaskID}
	if r.closed {
		outcome.Kind = OutcomeDiscarded
		return outcome
	}
	current, ok := r.pending[call.Intent.TaskID]
	if !ok || current.token != call.token {
		outcome.Kind = OutcomeDiscarded
		if err == nil {
			r.stale[call.Intent.TaskID] = true
			// Nothing newer is waiting on the server, which may now hold this older status.
			outcome.Refresh = !ok && !r.gateFor(call.Intent.TaskID)
		}
		return outcome
	}
	delete(r.pending, call.Intent.TaskID)
	stale := r.stale[call.Intent.TaskID]
	delete(r.stale, call.Intent.TaskID)

	if err != nil {
		outcome.Kind = OutcomeRolledBack
		outcome.Err = err
		outcome.Message = messageFor(err)
		outcome.Refresh = stale || needsRefresh(err)
		return outcome
	}

	r.committed, _ = ApplyMove(r.committed, current.intent)
	r.committed = r.committed.absorb(task)
	outcome.Kind = OutcomeCommitted
	outcome.Task = task
	return outcome
}

// Refresh rebuilds committed from authoritative tasks. Pending moves keep replaying on top.
func (r *Reconciler) Refresh(tasks []domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.committed = NewProjection(tasks)
	clear(r.stale)
	if r.gate != nil {
		if _, _, ok := r.committed.Find(r.gate.intent.TaskID); !ok {
			r.gate = nil
		}
	}
}

// Close tears the reconciler down. Later responses are discarded silently.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.gate = nil
	clear(r.pending)
	clear(r.stale)
}
