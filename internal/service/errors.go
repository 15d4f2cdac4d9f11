package service

import (
	"errors"
	"fmt"
)

// Kind classifies booking errors so the transport layer can map them to
// status codes and clients can pick a recovery path.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindValidation
	KindUnavailable
	KindInvalidTransition
	KindPolicyViolation
	KindVerificationFailed
	KindForbidden
	KindRefundFailed
	KindPaymentConflict
)

var kindNames = map[Kind]string{
	KindNotFound:           "not_found",
	KindValidation:         "validation_error",
	KindUnavailable:        "unavailable",
	KindInvalidTransition:  "invalid_transition",
	KindPolicyViolation:    "policy_violation",
	KindVerificationFailed: "verification_failed",
	KindForbidden:          "forbidden",
	KindRefundFailed:       "refund_failed",
	KindPaymentConflict:    "payment_conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "internal"
}

// Error is the error type returned by every booking operation for
// expected failures.  Anything else is an infrastructure error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target carries no message,
// which is how the sentinels below are declared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrPolicyViolation    = &Error{Kind: KindPolicyViolation}
	ErrVerificationFailed = &Error{Kind: KindVerificationFailed}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrRefundFailed       = &Error{Kind: KindRefundFailed}
	ErrPaymentConflict    = &Error{Kind: KindPaymentConflict}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// illegal wraps a rejected state change from the model.
func illegal(err error) *Error {
	return &Error{Kind: KindInvalidTransition, Msg: "status change not allowed", Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a booking error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
