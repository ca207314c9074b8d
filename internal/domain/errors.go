package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorises failures of a sync execution.
type ErrorKind string

const (
	// ConfigurationMissing: required profile fields are absent. Never retried.
	ConfigurationMissing ErrorKind = "CONFIGURATION_MISSING"

	// NetworkUnreachable: ledger server or provider API could not be reached.
	NetworkUnreachable ErrorKind = "NETWORK_UNREACHABLE"

	// AuthenticationFailed: provider credentials or ledger password rejected.
	AuthenticationFailed ErrorKind = "AUTHENTICATION_FAILED"

	// RemoteLedgerNotFound: the budget was never uploaded to the server.
	RemoteLedgerNotFound ErrorKind = "REMOTE_LEDGER_NOT_FOUND"

	// PartialAccountFailure: one account failed; the run continues.
	PartialAccountFailure ErrorKind = "PARTIAL_ACCOUNT_FAILURE"

	// MalformedTransaction: a source transaction has no usable date.
	MalformedTransaction ErrorKind = "MALFORMED_TRANSACTION"
)

// Error is a classified failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// NewError builds a classified error.
func NewError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain holds a classified error of kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Describe renders err for the dashboard: the message of the classified error
// when there is one, the plain error text otherwise.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
