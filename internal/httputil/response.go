package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Status is the control panel's ok/bad envelope.
type Status struct {
	Status string `json:"status"`
}

var (
	StatusOK  = Status{Status: "ok"}
	StatusBad = Status{Status: "bad"}
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Status  string              `json:"status"`
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteJSON(w, StatusFromCode(appErr.Code), ErrorResponse{
		Status:  StatusBad.Status,
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeUnmanagedServer,
		apperrors.ErrCodeNoSuchMap,
		apperrors.ErrCodeAmbiguousVote:
		return http.StatusBadRequest

	// 403 Forbidden
	case apperrors.ErrCodeUnknownPluginSource:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeSaveInProgress:
		return http.StatusConflict

	// 502 Bad Gateway
	case apperrors.ErrCodeTransport,
		apperrors.ErrCodeExternal:
		return http.StatusBadGateway

	// 504 Gateway Timeout
	case apperrors.ErrCodeTransportTimeout:
		return http.StatusGatewayTimeout

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase,
		apperrors.ErrCodeSaveFileNotFound,
		apperrors.ErrCodeEmptySaveFile,
		apperrors.ErrCodeArchiveIO:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
