package chore

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors.
type Code string

const (
	// CodeConfiguration marks an invalid or contradictory chore definition.
	CodeConfiguration Code = "CONFIGURATION"

	// CodePermissionDenied marks an actor not allowed to perform a transition.
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// CodeInvalidTransition marks a transition the current state does not allow.
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// CodeStateConflict marks a lost race for the same instance. Retryable.
	CodeStateConflict Code = "STATE_CONFLICT"

	// CodeNotFound marks an unknown chore, participant or instance.
	CodeNotFound Code = "NOT_FOUND"
)

// Error is returned by every engine operation. It never leaves partial
// state behind: a failed operation has not changed the instance.
type Error struct {
	Code        Code
	Op          string
	Chore       string
	Participant string
	Message     string
	Err         error
}

var (
	ErrConfiguration     = &Error{Code: CodeConfiguration}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrStateConflict     = &Error{Code: CodeStateConflict}
	ErrNotFound          = &Error{Code: CodeNotFound}
)

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	switch {
	case e.Chore != "" && e.Participant != "":
		msg += fmt.Sprintf(" (chore=%s, participant=%s)", e.Chore, e.Participant)
	case e.Chore != "":
		msg += fmt.Sprintf(" (chore=%s)", e.Chore)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, chore.ErrStateConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the engine error code carried by err, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether re-reading state and retrying may succeed.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeStateConflict
}

func newError(code Code, op, chore, participant, format string, args ...any) *Error {
	return &Error{
		Code:        code,
		Op:          op,
		Chore:       chore,
		Participant: participant,
		Message:     fmt.Sprintf(format, args...),
	}
}
