// Package apperr classifies errors into the kinds callers and HTTP handlers
// branch on. Packages declare their own sentinels with these constructors and
// wrap them with fmt.Errorf("%w") as usual.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the coarse classification of an error.
type Kind string

const (
	KindInternal        Kind = "internal"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation_failure"
	KindUpstreamFailure Kind = "upstream_failure"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindSlotConflict    Kind = "slot_conflict"
)

// Error carries a kind, a caller-facing message and optional field details.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a not-found error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Validation builds a validation error with optional field details.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Conflict builds a slot-conflict error.
func Conflict(msg string) *Error {
	return &Error{Kind: KindSlotConflict, Message: msg}
}

// Upstream wraps a failure from an external collaborator. Deadline expiry is
// classified as a timeout.
func Upstream(msg string, err error) *Error {
	kind := KindUpstreamFailure
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindUpstreamTimeout
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamTimeout
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FieldsOf returns validation field details carried by err, if any.
func FieldsOf(err error) map[string]string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}
