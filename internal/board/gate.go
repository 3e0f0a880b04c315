package board

import (
	"context"
	"strings"

	"github.com/hylla/nexus/internal/domain"
)

// PendingIntent is a BLOCKED move waiting for the user to supply a reason.
type PendingIntent struct {
	TaskID     string
	FromStatus domain.Status
	ToIndex    int
}

type gateState struct {
	intent PendingIntent
	token  uint64
}

// Gate returns the open block-reason prompt, if any.
func (r *Reconciler) Gate() (PendingIntent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate == nil {
		return PendingIntent{}, false
	}
	return r.gate.intent, true
}

func (r *Reconciler) gateFor(taskID string) bool {
	return r.gate != nil && r.gate.intent.TaskID == taskID
}

func (r *Reconciler) openGateLocked(intent PendingIntent) {
	r.nextToken++
	r.gate = &gateState{intent: intent, token: r.nextToken}
}

// EditBlockReason opens the gate for a task already in BLOCKED so a new reason can be recorded.
func (r *Reconciler) EditBlockReason(taskID string) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := Outcome{TaskID: taskID}
	if r.closed {
		outcome.Kind = OutcomeDiscarded
		return outcome
	}
	card, index, ok := r.workingLocked().Find(taskID)
	if !ok || card.Status != domain.StatusBlocked {
		outcome.Kind = OutcomeInvalid
		outcome.Err = ErrUnknownCard
		outcome.Message = "only blocked tasks have a reason to edit"
		return outcome
	}
	r.openGateLocked(PendingIntent{
		TaskID:     taskID,
		FromStatus: domain.StatusBlocked,
		ToIndex:    index,
	})
	outcome.Kind = OutcomeAwaitingReason
	return outcome
}

// CancelBlock discards the pending intent. Nothing was applied, so nothing is rolled back.
func (r *Reconciler) CancelBlock() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate == nil {
		return Outcome{Kind: OutcomeInvalid, Err: ErrNoPendingIntent, Message: ErrNoPendingIntent.Error()}
	}
	taskID := r.gate.intent.TaskID
	r.gate = nil
	return Outcome{Kind: OutcomeCanceled, TaskID: taskID}
}

// ResolveBlock submits the reason for the open gate and waits for the server.
func (r *Reconciler) ResolveBlock(ctx context.Context, reason string) Outcome {
	out, call := r.PlanResolve(reason)
	if call == nil {
		return out
	}
	task, err := r.Execute(ctx, call)
	return r.Complete(call, task, err)
}

// PlanResolve validates the reason locally and returns the BLOCKED call to run. An empty
// reason keeps the gate open without a round trip.
func (r *Reconciler) PlanResolve(reason string) (Outcome, *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{Kind: OutcomeDiscarded}, nil
	}
	if r.gate == nil {
		return Outcome{Kind: OutcomeInvalid, Err: ErrNoPendingIntent, Message: ErrNoPendingIntent.Error()}, nil
	}
	intent := r.gate.intent
	if strings.TrimSpace(reason) == "" {
		err := &RejectionError{Code: domain.RejectMissingReason, Message: domain.RejectMissingReason.Message()}
		return Outcome{
			Kind:    OutcomeGateRejected,
			TaskID:  intent.TaskID,
			Err:     err,
			Message: messageFor(err),
		}, nil
	}
	// The BLOCKED call supersedes a move still in flight for the same task.
	if _, ok := r.pending[intent.TaskID]; ok {
		delete(r.pending, intent.TaskID)
		r.stale[intent.TaskID] = true
	}
	return Outcome{Kind: OutcomePending, TaskID: intent.TaskID}, &Call{
		token: r.gate.token,
		gate:  true,
		Intent: MoveIntent{
			TaskID:     intent.TaskID,
			FromStatus: intent.FromStatus,
			ToStatus:   domain.StatusBlocked,
			ToIndex:    intent.ToIndex,
		},
		Reason: strings.TrimSpace(reason),
	}
}

// completeGate folds a BLOCKED response into the board. Success is server truth and is
// absorbed even when the prompt was canceled meanwhile; failure leaves the gate open.
func (r *Reconciler) completeGate(call *Call, task domain.Task, err error) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := Outcome{TaskID: call.Intent.TaskID}
	if r.closed {
		outcome.Kind = OutcomeDiscarded
		return outcome
	}
	current := r.gate != nil && r.gate.token == call.token
	stale := r.stale[call.Intent.TaskID]

	if err != nil {
		if !current {
			outcome.Kind = OutcomeDiscarded
			return outcome
		}
		delete(r.stale, call.Intent.TaskID)
		outcome.Kind = OutcomeGateRejected
		outcome.Err = err
		outcome.Message = messageFor(err)
		outcome.Refresh = stale || needsRefresh(err)
		if needsRefresh(err) {
			r.gate = nil
		}
		return outcome
	}

	if current {
		r.gate = nil
	}
	delete(r.stale, call.Intent.TaskID)
	if call.Intent.FromStatus != domain.StatusBlocked {
		r.committed, _ = ApplyMove(r.committed, call.Intent)
	}
	r.committed = r.committed.absorb(task)
	outcome.Kind = OutcomeCommitted
	outcome.Task = task
	outcome.Refresh = !current || stale
	return outcome
}
