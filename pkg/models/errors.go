package models

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the closed taxonomy of error surfaces a caller
// may observe. Kinds are implementation-free labels, never internal
// stack detail.
type ErrorKind string

const (
	TransientExternal               ErrorKind = "transient_external"
	InvalidShape                    ErrorKind = "invalid_shape"
	TemplateMissing                 ErrorKind = "template_missing"
	MalformedRecord                 ErrorKind = "malformed_record"
	IdentityPendingCapacityExceeded ErrorKind = "identity_pending_capacity_exceeded"
	ClusteringFailed                ErrorKind = "clustering_failed"
	StabilityExceeded               ErrorKind = "stability_exceeded"
	ConfigurationInvalid            ErrorKind = "configuration_invalid"
	PersistenceFailed               ErrorKind = "persistence_failed"
)

// Error is the single error type carried across package boundaries.
// Kind is the stable, user-visible label; Message is a human
// description; Err, when non-nil, is the wrapped cause (never exposed
// to external callers).
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error of the given kind, optionally wrapping a
// cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the ErrorKind of err, if any *Error is present in its
// chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
