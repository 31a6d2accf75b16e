package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError là custom error type cho application
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the raw cause to errors.Is/As
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors
func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrInvalidPayload() AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_PAYLOAD,
		Message:  "Invalid payload",
	}
}

func ErrNotFound(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("%s not found", resource),
	}
}

func ErrPermissionDenied(action string) AppError {
	return AppError{
		HTTPCode: http.StatusForbidden,
		Code:     ErrorCode_PERMISSION_DENIED,
		Message:  fmt.Sprintf("Permission denied: %s", action),
	}
}

func ErrUnauthenticated() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_UNAUTHENTICATED,
		Message:  "Authentication required",
	}
}

// Authentication Errors
func ErrInvalidToken() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_AUTH_INVALID_TOKEN,
		Message:  "Invalid authentication token",
	}
}

func ErrTokenExpired() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_AUTH_TOKEN_EXPIRED,
		Message:  "Authentication token has expired",
	}
}

// Voiceprint Errors
func ErrVoiceprintNotFound(profileID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_VOICEPRINT_NOT_FOUND,
		Message:  "Voiceprint not found",
	}.WithDetail("profile_id", profileID)
}

func ErrInsufficientSamples(got, min int) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_VOICEPRINT_INSUFFICIENT_SAMP,
		Message:  fmt.Sprintf("At least %d audio samples are required", min),
	}.WithDetail("samples", fmt.Sprint(got))
}

func ErrTooManySamples(max int) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_VOICEPRINT_TOO_MANY_SAMPLES,
		Message:  fmt.Sprintf("At most %d audio samples are allowed", max),
	}
}

func ErrNotOwner(profileID string) AppError {
	return AppError{
		HTTPCode: http.StatusForbidden,
		Code:     ErrorCode_VOICEPRINT_NOT_OWNER,
		Message:  "Only the owner can modify this voiceprint",
	}.WithDetail("profile_id", profileID)
}

func ErrInvalidAudio(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_VOICEPRINT_INVALID_AUDIO,
		Message:  "Invalid audio sample",
	}
}

func ErrInvalidEmbedding(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusUnprocessableEntity,
		Code:     ErrorCode_VOICEPRINT_INVALID_EMBEDDING,
		Message:  "Speaker engine returned an unusable embedding",
	}
}

// Realtime Session Errors
func ErrSessionAlreadyActive(meetingID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_SESSION_ALREADY_ACTIVE,
		Message:  "A transcription session is already active for this meeting",
	}.WithDetail("meeting_id", meetingID)
}

func ErrSessionNotFound(sessionID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_SESSION_NOT_FOUND,
		Message:  "Session not found or already closed",
	}.WithDetail("session_id", sessionID)
}

func ErrReconnectLimitExceeded(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_RECONNECT_LIMIT_EXCEEDED,
		Message:  "Speech engine connection lost",
	}
}

// Engine / Integration Errors
func ErrEngineUnavailable(engine string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusServiceUnavailable,
		Code:     ErrorCode_ENGINE_UNAVAILABLE,
		Message:  fmt.Sprintf("%s engine unavailable", engine),
	}.WithDetail("engine", engine)
}

func ErrEngineTimeout(engine string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusGatewayTimeout,
		Code:     ErrorCode_INTEGRATION_ENGINE_TIMEOUT,
		Message:  fmt.Sprintf("%s engine timed out", engine),
	}.WithDetail("engine", engine)
}

func ErrTranscriptionFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_TRANSCRIPTION_FAILED,
		Message:  "Transcription failed",
	}
}

func ErrStorageFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTEGRATION_STORAGE_FAILED,
		Message:  "Storage operation failed",
	}.WithDetail("operation", operation)
}

func ErrDBQueryFailed(query string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_DB_QUERY_FAILED,
		Message:  "Database query failed",
	}.WithDetail("query", query)
}
