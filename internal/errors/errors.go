package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Game server transport
	ErrCodeTransportTimeout ErrorCode = "TRANSPORT_TIMEOUT"
	ErrCodeTransport        ErrorCode = "TRANSPORT_ERROR"

	// Save pipeline
	ErrCodeSaveFileNotFound ErrorCode = "SAVE_FILE_NOT_FOUND"
	ErrCodeEmptySaveFile    ErrorCode = "EMPTY_SAVE_FILE"
	ErrCodeArchiveIO        ErrorCode = "ARCHIVE_IO_ERROR"
	ErrCodeSaveInProgress   ErrorCode = "SAVE_IN_PROGRESS"
	ErrCodeUnmanagedServer  ErrorCode = "UNMANAGED_SERVER"

	// Plugin
	ErrCodeUnknownPluginSource ErrorCode = "UNKNOWN_PLUGIN_SOURCE"
	ErrCodeAmbiguousVote       ErrorCode = "AMBIGUOUS_VOTE"
	ErrCodeNoSuchMap           ErrorCode = "NO_SUCH_MAP"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func TransportTimeout(address string) *AppError {
	return New(ErrCodeTransportTimeout, fmt.Sprintf("No response from %s", address))
}

func Transport(address string, cause error) *AppError {
	return Wrap(ErrCodeTransport, fmt.Sprintf("Connection to %s failed", address), cause)
}

func SaveFileNotFound(base string) *AppError {
	return New(ErrCodeSaveFileNotFound, fmt.Sprintf("Save file %s did not appear", base))
}

func EmptySaveFile(path string) *AppError {
	return New(ErrCodeEmptySaveFile, fmt.Sprintf("Save file %s is 0 bytes", path))
}

func ArchiveIO(op string, cause error) *AppError {
	return Wrap(ErrCodeArchiveIO, fmt.Sprintf("Archive %s failed", op), cause)
}

func SaveInProgress(server string) *AppError {
	return New(ErrCodeSaveInProgress, fmt.Sprintf("A save is already running for %s", server))
}

func UnmanagedServer(server string) *AppError {
	return New(ErrCodeUnmanagedServer, fmt.Sprintf("%s has no save directory", server))
}

func UnknownPluginSource(addr string) *AppError {
	return New(ErrCodeUnknownPluginSource, fmt.Sprintf("No server matches plugin address %s", addr))
}

func AmbiguousVote(matches []string) *AppError {
	return New(ErrCodeAmbiguousVote, "Multiple maps match").WithDetails(matches)
}

func NoSuchMap(name string) *AppError {
	return New(ErrCodeNoSuchMap, fmt.Sprintf("%s is not a valid map", name))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}
