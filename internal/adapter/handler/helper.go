package handler

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/errors"
	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
)

// maxAudioBytes caps one uploaded audio part
const maxAudioBytes = 200 << 20

// Response shapes
type success struct {
	Code    interface{} `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errs struct {
	Code    interface{} `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Info    string      `json:"info,omitempty"`
}

// getRequestID tries to read X-Request-ID from the request
func getRequestID(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().Header.Get("X-Request-ID")
}

// HandleSuccess writes a standardized success response using provided logger
func HandleSuccess(logger *zap.Logger, c echo.Context, data interface{}) error {
	return handleSuccessStatus(logger, c, http.StatusOK, data)
}

func handleSuccessStatus(logger *zap.Logger, c echo.Context, status int, data interface{}) error {
	resp := success{
		Code:    int(errors.ErrorCode_HTTP_OK),
		Message: "success",
		Data:    data,
	}

	if logger != nil {
		logger.Info("http.response.success",
			zap.String("request_id", getRequestID(c)),
			zap.String("path", c.Path()),
		)
	}

	return c.JSON(status, resp)
}

// HandleError centralizes error handling and logging using provided logger.
// Use-case sentinels are translated to AppErrors first.
func HandleError(logger *zap.Logger, c echo.Context, err error) error {
	reqID := getRequestID(c)
	appErr := toAppError(err)

	if logger != nil {
		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.String("app_code", appErr.Code.String()),
			zap.Error(err),
		}
		if appErr.HTTPCode >= http.StatusInternalServerError {
			logger.Error("http.response.error", fields...)
		} else {
			logger.Warn("http.response.error", fields...)
		}
	}

	info := ""
	if appErr.Raw != nil {
		info = appErr.Raw.Error()
	}

	body := errs{
		Code:    appErr.Code,
		Message: appErr.Message,
		Info:    info,
	}
	return c.JSON(appErr.HTTPCode, body)
}

// NewErrorWriter adapts HandleError for middleware
func NewErrorWriter(logger *zap.Logger) func(c echo.Context, err error) error {
	return func(c echo.Context, err error) error {
		return HandleError(logger, c, err)
	}
}

// toAppError maps domain and use-case errors onto the API error taxonomy
func toAppError(err error) errors.AppError {
	var appErr errors.AppError
	if stdErrors.As(err, &appErr) {
		return appErr
	}

	coded := func(status int, code errors.ErrorCode, message string) errors.AppError {
		return errors.AppError{Raw: err, HTTPCode: status, Code: code, Message: message}
	}

	switch {
	case stdErrors.Is(err, ucerrors.ErrInvalidInput):
		return coded(http.StatusBadRequest, errors.ErrorCode_INVALID_ARGUMENT, "Invalid request")
	case stdErrors.Is(err, ucerrors.ErrUnauthorized):
		return errors.ErrUnauthenticated()
	case stdErrors.Is(err, ucerrors.ErrInsufficientSamples):
		return coded(http.StatusBadRequest, errors.ErrorCode_VOICEPRINT_INSUFFICIENT_SAMP, "Not enough audio samples")
	case stdErrors.Is(err, ucerrors.ErrTooManySamples):
		return coded(http.StatusBadRequest, errors.ErrorCode_VOICEPRINT_TOO_MANY_SAMPLES, "Too many audio samples")
	case stdErrors.Is(err, ucerrors.ErrNotOwner):
		return coded(http.StatusForbidden, errors.ErrorCode_VOICEPRINT_NOT_OWNER, "Only the owner can modify this voiceprint")
	case stdErrors.Is(err, ucerrors.ErrProfileNotFound):
		return coded(http.StatusNotFound, errors.ErrorCode_VOICEPRINT_NOT_FOUND, "Voiceprint not found")
	case stdErrors.Is(err, ucerrors.ErrInvalidAudio):
		return errors.ErrInvalidAudio(err)
	case stdErrors.Is(err, ucerrors.ErrInvalidEmbedding):
		return errors.ErrInvalidEmbedding(err)
	case stdErrors.Is(err, ucerrors.ErrSessionAlreadyActive):
		return coded(http.StatusConflict, errors.ErrorCode_SESSION_ALREADY_ACTIVE, "A transcription session is already active for this meeting")
	case stdErrors.Is(err, ucerrors.ErrSessionNotFound):
		return coded(http.StatusNotFound, errors.ErrorCode_SESSION_NOT_FOUND, "Session not found or already closed")
	case stdErrors.Is(err, ucerrors.ErrReconnectLimitExceeded):
		return errors.ErrReconnectLimitExceeded(err)
	case stdErrors.Is(err, context.DeadlineExceeded):
		return errors.ErrEngineTimeout("speech", err)
	case stdErrors.Is(err, ucerrors.ErrEngineUnavailable), stdErrors.Is(err, ucerrors.ErrProtocol):
		return errors.ErrEngineUnavailable("speech", err)
	}
	return errors.ErrInternal(err)
}

// userIDFrom returns the caller set by the auth middleware
func userIDFrom(c echo.Context) (uuid.UUID, error) {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, errors.ErrUnauthenticated()
	}
	return userID, nil
}

// readAudioParts reads every file uploaded under field or field[]
func readAudioParts(c echo.Context, field string) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.ErrInvalidArgument("multipart form expected")
	}
	headers := append(form.File[field], form.File[field+"[]"]...)
	out := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// readAudioPart reads the single file uploaded under field
func readAudioPart(c echo.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, errors.ErrInvalidArgument(fmt.Sprintf("%s file is required", field))
	}
	return readPart(fh)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxAudioBytes {
		return nil, errors.ErrInvalidArgument(fmt.Sprintf("%s exceeds %d bytes", fh.Filename, maxAudioBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.ErrInvalidArgument(fmt.Sprintf("cannot open %s", fh.Filename))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes+1))
	if err != nil {
		return nil, errors.ErrInternal(err)
	}
	if len(data) == 0 {
		return nil, errors.ErrInvalidArgument(fmt.Sprintf("%s is empty", fh.Filename))
	}
	return data, nil
}
