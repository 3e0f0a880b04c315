package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidBody        = errors.New("invalid comment body")
	ErrInvalidMessage     = errors.New("invalid notification message")
	ErrInvalidActor       = errors.New("invalid actor")
	ErrTaskDeleted        = errors.New("task is deleted")
	ErrTaskNotDeleted     = errors.New("task is not deleted")
	ErrTransitionRejected = errors.New("transition rejected")
)
