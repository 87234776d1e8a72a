package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes raised by the protocol packages
const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Signature errors
	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
	ErrCodeSignatureExpired ErrorCode = "SIGNATURE_EXPIRED"

	// Authorization errors
	ErrCodeNotDeployer      ErrorCode = "NOT_DEPLOYER"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// State errors
	ErrCodeRequestAlreadyExists ErrorCode = "REQUEST_ALREADY_EXISTS"
	ErrCodeRequestNotExists     ErrorCode = "REQUEST_NOT_EXISTS"
	ErrCodeRequestNotUnlocked   ErrorCode = "REQUEST_NOT_UNLOCKED"
	ErrCodeKeyAlreadyOwner      ErrorCode = "KEY_ALREADY_OWNER"

	// Policy errors
	ErrCodeNotEnoughSignatures ErrorCode = "NOT_ENOUGH_SIGNATURES"
	ErrCodeOnlyCallsAllowed    ErrorCode = "ONLY_CALLS_ALLOWED"
)

// Class groups error codes by the kind of failure they report.
type Class string

const (
	ClassSignatureInvalid    Class = "signature_invalid"
	ClassAuthorizationDenied Class = "authorization_denied"
	ClassStateConflict       Class = "state_conflict"
	ClassPolicyViolation     Class = "policy_violation"
	ClassInput               Class = "input"
	ClassInternal            Class = "internal"
)

// ClassOf returns the failure class of an error code
func ClassOf(code ErrorCode) Class {
	switch code {
	case ErrCodeSignatureInvalid, ErrCodeSignatureExpired:
		return ClassSignatureInvalid
	case ErrCodeNotDeployer, ErrCodePermissionDenied, ErrCodeUnauthorized:
		return ClassAuthorizationDenied
	case ErrCodeRequestAlreadyExists, ErrCodeRequestNotExists, ErrCodeRequestNotUnlocked,
		ErrCodeKeyAlreadyOwner, ErrCodeAlreadyExists:
		return ClassStateConflict
	case ErrCodeNotEnoughSignatures, ErrCodeOnlyCallsAllowed:
		return ClassPolicyViolation
	case ErrCodeInvalidInput, ErrCodeNotFound, ErrCodeRateLimitExceeded:
		return ClassInput
	default:
		return ClassInternal
	}
}

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinel-style comparisons work
// with errors.Is(err, errors.New(code, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Class returns the failure class of this error
func (e *Error) Class() Class {
	return ClassOf(e.Code)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetClass extracts the failure class from an error
func GetClass(err error) Class {
	return ClassOf(GetCode(err))
}

// As is errors.As, re-exported so callers need a single errors import
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is, re-exported so callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	// 400 Bad Request
	case ErrCodeInvalidInput, ErrCodeSignatureInvalid, ErrCodeSignatureExpired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 403 Forbidden
	case ErrCodeNotDeployer, ErrCodePermissionDenied:
		return http.StatusForbidden

	// 404 Not Found
	case ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case ErrCodeAlreadyExists, ErrCodeRequestAlreadyExists, ErrCodeRequestNotExists,
		ErrCodeRequestNotUnlocked, ErrCodeKeyAlreadyOwner:
		return http.StatusConflict

	// 422 Unprocessable Entity
	case ErrCodeNotEnoughSignatures, ErrCodeOnlyCallsAllowed:
		return http.StatusUnprocessableEntity

	// 429 Too Many Requests
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 500 Internal Server Error (default)
	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// AlreadyExists creates an "already exists" error
func AlreadyExists(resourceType, identifier string) *Error {
	return Newf(ErrCodeAlreadyExists, "%s already exists: %s", resourceType, identifier)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// InvalidSignature creates a "signature invalid" error naming the expected signer
func InvalidSignature(signer string) *Error {
	return Newf(ErrCodeSignatureInvalid, "invalid signature (%s)", signer)
}

// PermissionDenied creates a "permission denied" error
func PermissionDenied(message string) *Error {
	return New(ErrCodePermissionDenied, message)
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
