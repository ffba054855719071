// Package apierr defines the errors surfaced by the learning API.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindAccessDenied
	KindNotRequired
	KindInconsistentAttempt
	KindComputation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindNotRequired:
		return "not_required"
	case KindInconsistentAttempt:
		return "inconsistent_attempt_state"
	case KindComputation:
		return "computation_error"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotRequired:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// Error is an API-facing error with a human readable reason and, where
// useful, a link the client can navigate to.
type Error struct {
	Kind   Kind
	Reason string
	Action string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error.
func (e *Error) Status() int { return e.Kind.Status() }

// NotFound reports a missing course, lesson, topic, quiz or enrolment.
func NotFound(what, id string, err error) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf("%s %q not found", what, id), Err: err}
}

// AccessDenied reports a gating veto. action is optional.
func AccessDenied(reason, action string) *Error {
	return &Error{Kind: KindAccessDenied, Reason: reason, Action: action}
}

// NotRequired reports a request for an assessment the student does not need.
func NotRequired(reason, action string) *Error {
	return &Error{Kind: KindNotRequired, Reason: reason, Action: action}
}

// Computation reports a failure while recomputing progress.
func Computation(reason string, err error) *Error {
	return &Error{Kind: KindComputation, Reason: reason, Err: err}
}

// InconsistentAttempt reports a repaired attempt history.
func InconsistentAttempt(reason string) *Error {
	return &Error{Kind: KindInconsistentAttempt, Reason: reason}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}
