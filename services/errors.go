package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error. It decides the transport status.
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
)

// ErrorCode names the precise credential failure inside an ErrorType
type ErrorCode string

const (
	CodeMissingCredential   ErrorCode = "missing_credential"
	CodeMalformedCredential ErrorCode = "malformed_credential"
	CodeInvalidCredentials  ErrorCode = "invalid_credentials"
	CodeInvalidToken        ErrorCode = "invalid_token"
	CodeUnknownToken        ErrorCode = "unknown_token"
	CodeBadSignature        ErrorCode = "bad_signature"
	CodeExpired             ErrorCode = "expired"
	CodeRevoked             ErrorCode = "revoked"
	CodeWrongKind           ErrorCode = "wrong_kind"
	CodeForbidden           ErrorCode = "forbidden"
	CodeUnknownPrincipal    ErrorCode = "unknown_principal"
	CodeInvalidRole         ErrorCode = "invalid_role"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeConflict            ErrorCode = "conflict"
	CodeNotFound            ErrorCode = "not_found"
	CodeInternal            ErrorCode = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Errors with a code match on the code,
// code-less targets match on the type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// Wrap returns a copy of e carrying err as its cause. Sentinels are never mutated.
func (e *DomainError) Wrap(err error) *DomainError {
	cp := e.clone()
	cp.Err = err
	return cp
}

// WithDetail returns a copy of e with an extra detail
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	cp := e.clone()
	cp.Details[key] = value
	return cp
}

func (e *DomainError) clone() *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	return &DomainError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: details,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Unauthenticated: no usable credential
	ErrMissingCredential   = NewDomainError(ErrorTypeUnauthorized, CodeMissingCredential, "authorization header missing", nil)
	ErrMalformedCredential = NewDomainError(ErrorTypeUnauthorized, CodeMalformedCredential, "authorization header must be 'Bearer <token>'", nil)

	// Login
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, CodeInvalidCredentials, "invalid username or password", nil)
	ErrUnknownPrincipal   = NewDomainError(ErrorTypeUnauthorized, CodeUnknownPrincipal, "principal not found", nil)

	// Opaque tokens
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, CodeInvalidToken, "invalid API token", nil)
	ErrUnknownToken = NewDomainError(ErrorTypeUnauthorized, CodeUnknownToken, "unknown or revoked API token", nil)

	// Session tokens
	ErrBadSignature = NewDomainError(ErrorTypeUnauthorized, CodeBadSignature, "token signature verification failed", nil)
	ErrExpired      = NewDomainError(ErrorTypeUnauthorized, CodeExpired, "token has expired", nil)
	ErrRevoked      = NewDomainError(ErrorTypeUnauthorized, CodeRevoked, "token has been revoked", nil)
	ErrWrongKind    = NewDomainError(ErrorTypeUnauthorized, CodeWrongKind, "token kind not accepted here", nil)

	// Permission
	ErrForbidden = NewDomainError(ErrorTypeForbidden, CodeForbidden, "insufficient role for this endpoint", nil)

	// Validation
	ErrInvalidRole  = NewDomainError(ErrorTypeValidation, CodeInvalidRole, "role is not one of admin, operator, user, service", nil)
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, CodeInvalidInput, "invalid input", nil)

	// Lookup
	ErrNotFound = NewDomainError(ErrorTypeNotFound, CodeNotFound, "resource not found", nil)

	// Conflict
	ErrConflict = NewDomainError(ErrorTypeConflict, CodeConflict, "state conflict", nil)

	// Internal
	ErrInternal = NewDomainError(ErrorTypeInternal, CodeInternal, "internal server error", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the ErrorCode of a domain error, or empty string if not a domain error
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, CodeInternal, message, err)
}
