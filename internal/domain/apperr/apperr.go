// Package apperr defines the error kinds returned by FlatHub services.
//
// Every failure a caller is expected to react to carries a Kind. Callers
// test for a kind with errors.Is against the sentinel values:
//
//	if errors.Is(err, apperr.ErrCapacity) { ... }
//
// or extract it with KindOf when mapping to a transport status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindCapacity
	KindDuplicate
	KindAuthorization
	KindState
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindDuplicate:
		return "duplicate"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed
// (e.g. "joinrequests.Accept"); Err is the optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors of the same kind. A sentinel is an *Error
// with only Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrCapacity      = &Error{Kind: KindCapacity}
	ErrDuplicate     = &Error{Kind: KindDuplicate}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrState         = &Error{Kind: KindState}
	ErrInvariant     = &Error{Kind: KindInvariant}
)

// New builds a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

func Capacity(op, format string, args ...any) *Error {
	return New(KindCapacity, op, format, args...)
}

func Duplicate(op, format string, args ...any) *Error {
	return New(KindDuplicate, op, format, args...)
}

func Authorization(op, format string, args ...any) *Error {
	return New(KindAuthorization, op, format, args...)
}

func State(op, format string, args ...any) *Error {
	return New(KindState, op, format, args...)
}

func Invariant(op, format string, args ...any) *Error {
	return New(KindInvariant, op, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
