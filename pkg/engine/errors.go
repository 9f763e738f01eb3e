package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error raised while orchestrating panels.
type ErrorClass string

const (
	// ErrorClassAssetNotFound indicates no template exists for the requested path.
	// The owning operation resolves as a logged no-op.
	ErrorClassAssetNotFound ErrorClass = "asset_not_found"

	// ErrorClassInvalidRole indicates the target lacks a capability the operation requires,
	// e.g. a main-screen request against a panel without the MainUI role.
	ErrorClassInvalidRole ErrorClass = "invalid_role"

	// ErrorClassCallbackException indicates a failure inside a lifecycle hook or a collaborator
	// (animator, loading handler). It is contained at the call site.
	ErrorClassCallbackException ErrorClass = "callback_exception"

	// ErrorClassStaleReference indicates the operation targets a panel that was already destroyed.
	ErrorClassStaleReference ErrorClass = "stale_reference"

	// ErrorClassInternal indicates a fault in the scheduler's own bookkeeping.
	// Only this class surfaces as a Failed operation handle.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the panel path involved, if applicable.
	Path string `json:"path,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	switch {
	case e.Path != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (path=%s, operation=%s)", e.Class, msg, e.Path, e.Operation)
	case e.Path != "":
		return fmt.Sprintf("[%s] %s (path=%s)", e.Class, msg, e.Path)
	default:
		return fmt.Sprintf("[%s] %s", e.Class, msg)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewAssetNotFoundError creates an error for a path with no template.
func NewAssetNotFoundError(path string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassAssetNotFound,
		Message: "no template for panel path",
		Code:    ErrCodeNotFound,
		Path:    path,
		Err:     err,
	}
}

// NewInvalidRoleError creates an error for a panel lacking a required role.
func NewInvalidRoleError(path string, required Role) *EngineError {
	return &EngineError{
		Class:   ErrorClassInvalidRole,
		Message: fmt.Sprintf("panel lacks required role %s", required),
		Code:    ErrCodeRole,
		Path:    path,
	}
}

// NewCallbackError wraps a failure raised by a hook or collaborator.
func NewCallbackError(path, hook string, err error) *EngineError {
	return &EngineError{
		Class:     ErrorClassCallbackException,
		Message:   "callback failed",
		Code:      ErrCodeCallback,
		Path:      path,
		Operation: hook,
		Err:       err,
	}
}

// NewStaleReferenceError creates an error for an operation targeting a destroyed panel.
func NewStaleReferenceError(path string) *EngineError {
	return &EngineError{
		Class:   ErrorClassStaleReference,
		Message: "panel already destroyed",
		Code:    ErrCodeStale,
		Path:    path,
	}
}

// NewInternalError creates an error for a scheduler bookkeeping fault.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// WithPath adds panel path context to an error.
func (e *EngineError) WithPath(path string) *EngineError {
	e.Path = path
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsAssetNotFound returns true if the error is classified as asset_not_found.
func IsAssetNotFound(err error) bool {
	return hasClass(err, ErrorClassAssetNotFound)
}

// IsInvalidRole returns true if the error is classified as invalid_role.
func IsInvalidRole(err error) bool {
	return hasClass(err, ErrorClassInvalidRole)
}

// IsCallbackException returns true if the error is classified as callback_exception.
func IsCallbackException(err error) bool {
	return hasClass(err, ErrorClassCallbackException)
}

// IsStaleReference returns true if the error is classified as stale_reference.
func IsStaleReference(err error) bool {
	return hasClass(err, ErrorClassStaleReference)
}

// IsInternal returns true if the error is classified as internal.
func IsInternal(err error) bool {
	return hasClass(err, ErrorClassInternal)
}

// Common error codes.
const (
	ErrCodeNotFound = "NOT_FOUND"
	ErrCodeRole     = "ROLE_MISSING"
	ErrCodeCallback = "CALLBACK_FAILED"
	ErrCodeStale    = "STALE_REFERENCE"
	ErrCodeInternal = "INTERNAL_ERROR"
	ErrCodeShutdown = "SYSTEM_SHUTDOWN"
)

var (
	// ErrTemplateNotFound may be returned by a TemplateLoader for unknown paths.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrSystemShutdown is reported by handles canceled because the System shut down.
	ErrSystemShutdown = &EngineError{Class: ErrorClassInternal, Message: "system shut down", Code: ErrCodeShutdown}
)
