// Package errors provides the structured error type used across jitserve and
// the default error sink that reports transform failures.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransform  ErrorType = "transform"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error is a structured error type with context.
type Error struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	ModuleID    string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.ModuleID != "" {
		parts = append(parts, "module:"+e.ModuleID)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *Error) WithLocation(filePath string, line, column int) *Error {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithModule records the module id the error was raised for.
func (e *Error) WithModule(id string) *Error {
	e.ModuleID = id

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewTransformError creates an error for a failed transpile or compile step.
func NewTransformError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeTransform,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}

	return false
}

// IsTransformError checks if an error came from a transform step.
func IsTransformError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeTransform
	}

	return false
}

// IsIOError checks if an error is I/O related.
func IsIOError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeIO
	}

	return false
}

// ErrorHandler is the default error sink. It only reports; it never writes a
// response.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch e.Type {
	case ErrorTypeTransform:
		h.logger.Warn(ctx, err, "Transform failed",
			"code", e.Code,
			"module", e.ModuleID,
			"file", e.FilePath,
			"line", e.Line)
	case ErrorTypeIO:
		h.logger.Warn(ctx, err, "I/O error occurred",
			"code", e.Code,
			"module", e.ModuleID,
			"file", e.FilePath)
	case ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Validation error occurred",
			"code", e.Code)
	default:
		if IsRecoverable(err) {
			h.logger.Warn(ctx, err, "Error occurred",
				"type", e.Type,
				"code", e.Code)
			return
		}
		h.logger.Error(ctx, err, "Error occurred",
			"type", e.Type,
			"code", e.Code)
	}
}

// Common error codes.
const (
	ErrCodeInvalidPath     = "ERR_INVALID_PATH"
	ErrCodePathTraversal   = "ERR_PATH_TRAVERSAL"
	ErrCodeFileNotFound    = "ERR_FILE_NOT_FOUND"
	ErrCodeReadFailed      = "ERR_READ_FAILED"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
	ErrCodeTransformFailed = "ERR_TRANSFORM_FAILED"
	ErrCodeRewriteFailed   = "ERR_REWRITE_FAILED"
	ErrCodeLoadFailed      = "ERR_LOAD_FAILED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// ErrPathTraversal reports a request path that resolves outside the root.
func ErrPathTraversal(path string) *Error {
	return NewValidationError(ErrCodePathTraversal, "path escapes project root").
		WithContext("path", path)
}

// ErrFileNotFound reports a missing source file.
func ErrFileNotFound(file string, cause error) *Error {
	return NewIOError(ErrCodeFileNotFound, "source file not found", cause).
		WithLocation(file, 0, 0)
}

// ErrReadFailed reports a source file that exists but could not be read.
func ErrReadFailed(file string, cause error) *Error {
	return NewIOError(ErrCodeReadFailed, "failed to read source file", cause).
		WithLocation(file, 0, 0)
}
