package board

import (
	"errors"
	"fmt"

	"github.com/hylla/nexus/internal/domain"
)

// ErrNetwork marks transport failures where the server was never reached or never answered.
var ErrNetwork = errors.New("could not reach server")

// ErrNoPendingIntent reports a gate operation without an open block-reason prompt.
var ErrNoPendingIntent = errors.New("no pending block intent")

// ErrUnknownCard reports a move for a task that is not on the board.
var ErrUnknownCard = errors.New("task is not on the board")

// RejectionError is a business rejection returned by the server.
type RejectionError struct {
	Code    domain.RejectCode
	Message string
}

// Error implements error.
func (e *RejectionError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches domain.ErrTransitionRejected.
func (e *RejectionError) Is(target error) bool {
	return target == domain.ErrTransitionRejected
}

// messageFor renders the user-facing text for one failed transition.
func messageFor(err error) string {
	var rejection *RejectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejection):
		switch rejection.Code {
		case domain.RejectNotOwner:
			return domain.RejectNotOwner.Message()
		case domain.RejectNotFound:
			return "Task no longer exists. Refresh the board."
		case domain.RejectMissingReason:
			return "Enter a reason to block this task."
		}
		if rejection.Message != "" {
			return rejection.Message
		}
		return rejection.Code.Message()
	case errors.Is(err, ErrNetwork):
		return ErrNetwork.Error()
	default:
		return err.Error()
	}
}

// needsRefresh reports whether local state can no longer be trusted after err.
func needsRefresh(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection) && rejection.Code == domain.RejectNotFound
}
