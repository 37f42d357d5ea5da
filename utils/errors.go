package utils

import (
	"errors"
	"net/http"

	"github.com/upb/authgate/services"
)

// StatusForError maps a domain error type to an HTTP status
func StatusForError(err error) int {
	switch services.GetErrorType(err) {
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorTypeForbidden:
		return http.StatusForbidden
	case services.ErrorTypeValidation:
		return http.StatusBadRequest
	case services.ErrorTypeNotFound:
		return http.StatusNotFound
	case services.ErrorTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err with the status of its type and its code in the
// "error" field. Internal errors never expose their message.
func WriteDomainError(w http.ResponseWriter, err error) error {
	return WriteDomainErrorStatus(w, StatusForError(err), err)
}

// WriteDomainErrorStatus writes err like WriteDomainError but with an explicit status
func WriteDomainErrorStatus(w http.ResponseWriter, status int, err error) error {
	code := string(services.GetErrorCode(err))
	if status >= http.StatusInternalServerError || code == "" {
		return WriteInternalServerError(w, "")
	}

	message := err.Error()
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	return WriteErrorCode(w, status, code, message, services.GetErrorDetails(err))
}
