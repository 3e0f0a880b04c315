package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidLimit   = errors.New("invalid limit")
	ErrNotifierFailed = errors.New("notification delivery failed")
)
