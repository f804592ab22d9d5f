// Package errors provides structured error types for precache.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the library packages
//   - Machine-readable error codes that map to process exit statuses
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes follow the failure taxonomy of a prune run:
//   - MALFORMED_GRAPH: the metadata document cannot produce a valid graph (fatal)
//   - UNRESOLVED_PLATFORM_EXPRESSION: a cfg guard could not be evaluated (warning)
//   - ENTRY_RELOCATION_FAILED: one cache entry could not be moved (recovered)
//   - INVALID_*: bad user input, rejected before any work happens
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidMode, "unknown mode: %s", mode)
//	if errors.Is(err, errors.ErrCodeInvalidMode) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeMalformedGraph, origErr, "decode metadata")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidPlatform Code = "INVALID_PLATFORM"
	ErrCodeInvalidMode     Code = "INVALID_MODE"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Retention computation errors (fatal, raised before any mutation)
	ErrCodeMalformedGraph  Code = "MALFORMED_GRAPH"
	ErrCodeMetadataCommand Code = "METADATA_COMMAND"
	ErrCodeScanFailed      Code = "SCAN_FAILED"

	// Recovered errors
	ErrCodeUnresolvedPlatform Code = "UNRESOLVED_PLATFORM_EXPRESSION"
	ErrCodeRelocationFailed   Code = "ENTRY_RELOCATION_FAILED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err invalidates the retention computation.
// Fatal errors must stop a run before any cache entry is moved.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeUnresolvedPlatform, ErrCodeRelocationFailed:
		return false
	default:
		return err != nil
	}
}
