// Package errs defines the typed error taxonomy shared across the
// cognitive core. Every public boundary returns an *Error rather than
// a bare sentinel so callers can branch on Kind without string matching.
package errs

import "fmt"

// Kind identifies the class of failure, per the propagation policy.
type Kind string

const (
	KindValidation       Kind = "validation_failure"
	KindLLMTransport     Kind = "llm_transport_failure"
	KindLLMStructured    Kind = "llm_structured_failure"
	KindConscienceVeto   Kind = "conscience_veto"
	KindResourceBreach   Kind = "resource_breach"
	KindDispatchFailure  Kind = "dispatch_failure"
	KindPersistence      Kind = "persistence_failure"
	KindIntegrityFailure Kind = "integrity_failure"
	KindIdentityFailure  Kind = "identity_failure"
	KindShutdownRequest  Kind = "shutdown_requested"
)

// Error is the core error type. Cause may be nil.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is allows errors.Is(err, &Error{Kind: K}) style matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// KindOf extracts the Kind of err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
