package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings; use
// errors.As to extract *Error, or IsKind / KindOf.
type Kind string

const (
	KindMalformedIdentifier   Kind = "MalformedIdentifier"
	KindInvalidDigestLength   Kind = "InvalidDigestLength"
	KindInvalidDigestEncoding Kind = "InvalidDigestEncoding"
	KindAlreadyBound          Kind = "AlreadyBound"
	KindTimeout               Kind = "Timeout"
	KindCanceled              Kind = "Canceled"
	KindNotFound              Kind = "NotFound"
	KindMalformedJSON         Kind = "MalformedJSON"
	// KindBackend covers any backend-reported failure not covered above.
	// Message carries the backend's raw message.
	KindBackend Kind = "Backend"
)

// Error is the structured error returned by every client operation.
//
// Ref names the identifier or peer address the operation was about, when
// there is one. Budget is set for KindTimeout.
type Error struct {
	Kind    Kind
	Op      string
	Ref     string
	Budget  time.Duration
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	switch {
	case e.Op != "" && e.Ref != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Ref, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is lets errors.Is(err, ErrNotFound) hold for KindNotFound errors that were
// built from a backend message rather than from the sentinel itself.
func (e *Error) Is(target error) bool {
	return e != nil && target == ErrNotFound && e.Kind == KindNotFound
}

func NewError(kind Kind, op, ref, msg string) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Message: msg}
}

func WrapError(kind Kind, op, ref string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Cause: cause}
}

// TimeoutError reports that op on ref did not complete within budget.
func TimeoutError(op, ref string, budget time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Op:      op,
		Ref:     ref,
		Budget:  budget,
		Message: fmt.Sprintf("timed out after %s", budget),
		Cause:   errors.New("deadline exceeded"),
	}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
