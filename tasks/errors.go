package tasks

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure crossing the repository boundary.
type Kind int

const (
	KindUnknown Kind = iota
	Unauthorized
	NotFound
	ValidationFailed
	TransientFailure
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not found"
	case ValidationFailed:
		return "validation failed"
	case TransientFailure:
		return "transient failure"
	default:
		return "unknown"
	}
}

// Error is a typed failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is comparisons against a kind.
var (
	ErrUnauthorized = &Error{Kind: Unauthorized}
	ErrNotFound     = &Error{Kind: NotFound}
	ErrValidation   = &Error{Kind: ValidationFailed}
	ErrTransient    = &Error{Kind: TransientFailure}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Msg == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// Errorf builds a typed error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to err. A typed err keeps its kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Op != "" {
			return err
		}
		return &Error{Kind: te.Kind, Op: op, Msg: te.Msg, Err: te.Err}
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf reports the kind of err. Deadlines and network errors are transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransientFailure
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return TransientFailure
	}
	return KindUnknown
}
