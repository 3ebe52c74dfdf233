package slots

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInterval Kind = "invalid_interval"
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnauthorized    Kind = "unauthorized"
)

// Stable display messages.
const (
	MsgScheduleConflict = "Schedule conflict"
	MsgScheduleIsPast   = "Schedule is past"
	MsgScheduleNotFound = "Schedule not found"
)

// Error is an expected, user-displayable failure. Anything else returned by the
// engine is an unexpected fault.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInterval = &Error{Kind: KindInvalidInterval, Message: "invalid interval"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

func InvalidInterval(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInterval, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// AsError unwraps err to an *Error; ok is false for unexpected faults.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
