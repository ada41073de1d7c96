// Package errors provides the coded application error used across the service.
// Callers branch on Code via CodeOf / Is instead of matching message strings.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the kind of failure.
type Code string

const (
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeValidation       Code = "VALIDATION_FAILED"
	ErrCodeAlreadyProcessed Code = "ALREADY_PROCESSED"
	ErrCodeConflict         Code = "CONFLICT"
	ErrCodeCascadeFailed    Code = "CASCADE_FAILED"
	ErrCodeUnauthorized     Code = "UNAUTHORIZED"
	ErrCodeForbidden        Code = "FORBIDDEN"
	ErrCodeInternal         Code = "INTERNAL"
)

// Error is an application error carrying a Code.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. An *Error that is
// already coded keeps its code.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput reports a validation failure on a single field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// AlreadyProcessed reports an action against a request that left pending.
func AlreadyProcessed(id, status string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyProcessed,
		Message: fmt.Sprintf("cannot update request %s: already processed (status: %s)", id, status),
	}
}

// CascadeFailed reports a failed status update on the business entity an
// approval refers to. The cause is kept whatever its code.
func CascadeFailed(entityType, entityID string, err error) *Error {
	return &Error{
		Code:    ErrCodeCascadeFailed,
		Message: fmt.Sprintf("failed to update %s %s", entityType, entityID),
		Err:     err,
	}
}

// CodeOf returns the code of err, ErrCodeInternal for uncoded errors and ""
// for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
