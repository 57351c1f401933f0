package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// HasCode reports whether err, or any error it wraps or joins, is an
// AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasCode(x.Unwrap(), code)
	}
	return false
}

// --- Fixture errors ---

// DuplicateName reports a fixture registered twice in the visible namespace chain.
func DuplicateName(name, namespace string) *AppError {
	return &AppError{
		Code: ErrCodeDuplicateName, Message: fmt.Sprintf("fixture %q is already registered in namespace %q", name, namespace),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"fixture": name, "namespace": namespace},
	}
}

// UnknownFixture reports a name that no visible namespace defines.
// requestedBy is empty when the name came straight from the test.
func UnknownFixture(name, requestedBy string) *AppError {
	msg := fmt.Sprintf("fixture %q not found", name)
	details := map[string]any{"fixture": name}
	if requestedBy != "" {
		msg = fmt.Sprintf("fixture %q not found (requested by %q)", name, requestedBy)
		details["requested_by"] = requestedBy
	}
	return &AppError{
		Code: ErrCodeUnknownFixture, Message: msg,
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// CyclicDependency reports a dependency cycle. cycle lists the members in
// traversal order with the first member repeated at the end.
func CyclicDependency(cycle []string) *AppError {
	return &AppError{
		Code: ErrCodeCyclicDependency, Message: "dependency cycle: " + strings.Join(cycle, " -> "),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"cycle": cycle},
	}
}

// ScopeMismatch reports a fixture that depends on a narrower-scoped fixture.
func ScopeMismatch(name, scope, dependency, depScope string) *AppError {
	return &AppError{
		Code: ErrCodeScopeMismatch,
		Message: fmt.Sprintf("%s-scoped fixture %q cannot use %s-scoped fixture %q",
			scope, name, depScope, dependency),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"fixture": name, "scope": scope,
			"dependency": dependency, "dependency_scope": depScope,
		},
	}
}

// InvalidDefinition reports a fixture definition rejected at registration.
func InvalidDefinition(name, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidDefinition, Message: fmt.Sprintf("invalid fixture %q: %s", name, reason),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"fixture": name},
	}
}

// Factory wraps a failure raised by a fixture factory during setup.
func Factory(name string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeFactory, Message: fmt.Sprintf("fixture %q setup failed", name),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"fixture": name}, Cause: cause,
	}
}

// Teardown wraps a failure raised while tearing a fixture down.
func Teardown(name string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTeardown, Message: fmt.Sprintf("fixture %q teardown failed", name),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"fixture": name}, Cause: cause,
	}
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// AlreadyExists creates a new AppError for a resource that already exists.
func AlreadyExists(resource string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("%s already exists", resource),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource": resource},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: reason,
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}
