// Package errors provides standardized domain errors with codes for dropwatch.
//
// Usage:
//
//	// At startup - return typed errors
//	if _, taken := owners[name]; taken {
//	    return errors.OptionCollisionf("option --%s already registered", name)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrPluginLoad) {
//	    os.Exit(1)
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeIO, errors.CodeNotRegular:
//	        logger.Warn("dropping event", "error", err)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeValidation      Code = "VALIDATION"
	CodeInvalidPattern  Code = "INVALID_PATTERN"
	CodeOptionCollision Code = "OPTION_COLLISION"
	CodeMissingOption   Code = "MISSING_OPTION"
	CodePluginLoad      Code = "PLUGIN_LOAD"
	CodeIO              Code = "IO"
	CodeNotRegular      Code = "NOT_REGULAR"
	CodeAction          Code = "ACTION"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeInvalidPattern, CodeMissingOption:
		return http.StatusBadRequest
	case CodeOptionCollision:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Startup reports whether errors with this code must abort startup.
func (c Code) Startup() bool {
	switch c {
	case CodeValidation, CodeInvalidPattern, CodeOptionCollision, CodeMissingOption, CodePluginLoad:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInvalidPattern  = &Error{Code: CodeInvalidPattern, Message: "invalid pattern"}
	ErrOptionCollision = &Error{Code: CodeOptionCollision, Message: "option collision"}
	ErrMissingOption   = &Error{Code: CodeMissingOption, Message: "missing required option"}
	ErrPluginLoad      = &Error{Code: CodePluginLoad, Message: "plugin load failed"}
	ErrIO              = &Error{Code: CodeIO, Message: "i/o error"}
	ErrNotRegular      = &Error{Code: CodeNotRegular, Message: "not a regular file"}
	ErrAction          = &Error{Code: CodeAction, Message: "action failed"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInternal        = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// InvalidPattern creates an invalid pattern error wrapping the compile failure.
func InvalidPattern(pattern string, err error) *Error {
	return &Error{Code: CodeInvalidPattern, Message: fmt.Sprintf("invalid pattern %q", pattern), cause: err}
}

// OptionCollisionf creates an option collision error with formatted message.
func OptionCollisionf(format string, args ...any) *Error {
	return &Error{Code: CodeOptionCollision, Message: fmt.Sprintf(format, args...)}
}

// MissingOptionf creates a missing option error with formatted message.
func MissingOptionf(format string, args ...any) *Error {
	return &Error{Code: CodeMissingOption, Message: fmt.Sprintf(format, args...)}
}

// PluginLoadf creates a plugin load error with formatted message.
func PluginLoadf(format string, args ...any) *Error {
	return &Error{Code: CodePluginLoad, Message: fmt.Sprintf(format, args...)}
}

// IOf creates an I/O error with formatted message.
func IOf(format string, args ...any) *Error {
	return &Error{Code: CodeIO, Message: fmt.Sprintf(format, args...)}
}

// NotRegular creates a not-regular-file error for path.
func NotRegular(path string) *Error {
	return &Error{Code: CodeNotRegular, Message: fmt.Sprintf("%s is not a regular file", path)}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
