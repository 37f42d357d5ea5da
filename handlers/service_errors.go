package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/authgate/services"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// The error code goes in the "error" field so clients can branch on it.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	switch {
	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
	case services.GetErrorType(err) == "":
		logger.Error("unhandled error type", zap.Error(err))
	default:
		logger.Debug("handled service error",
			zap.String("type", string(services.GetErrorType(err))),
			zap.String("code", string(services.GetErrorCode(err))))
	}

	if werr := utils.WriteDomainError(w, err); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// HandleServiceErrorStatus is HandleServiceError with an explicit status,
// used where an endpoint reports a domain code under a different status.
func HandleServiceErrorStatus(w http.ResponseWriter, status int, err error, logger *zap.Logger) {
	logger.Debug("handled service error",
		zap.Int("status", status),
		zap.String("code", string(services.GetErrorCode(err))))

	if werr := utils.WriteDomainErrorStatus(w, status, err); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		details = validationErr.Details()
		message = validationErr.Message
	}

	if werr := utils.WriteBadRequest(w, message, details); werr != nil {
		logger.Error("failed to write validation error response", zap.Error(werr))
	}
}
