package handler

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/errors"
	dto "github.com/johnquangdev/meeting-transcriber/internal/adapter/dto/transcription"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/internal/usecase/fusion"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
)

// Fuser runs the batch transcription and speaker attribution pass
type Fuser interface {
	Fuse(ctx context.Context, audioPath string, opts fusion.Options) *entities.FusionResult
}

// Transcription handles batch transcription of uploaded recordings
type Transcription struct {
	fuser   Fuser
	timeout time.Duration
	tempDir string
	logger  *zap.Logger
}

// NewTranscriptionHandler creates a new transcription handler
func NewTranscriptionHandler(fuser Fuser, timeout time.Duration, tempDir string, logger *zap.Logger) *Transcription {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Transcription{fuser: fuser, timeout: timeout, tempDir: tempDir, logger: logger}
}

// Transcribe handles POST /transcriptions
func (h *Transcription) Transcribe(c echo.Context) error {
	if _, err := userIDFrom(c); err != nil {
		return HandleError(h.logger, c, err)
	}

	var req dto.TranscribeRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument(err.Error()))
	}

	audio, err := readAudioPart(c, "audio")
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	path, cleanup, err := h.spool(audio)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrInternal(err))
	}
	defer cleanup()

	jobID := uuid.New()
	ctx, cancel := jobcontext.JobBegin(c.Request().Context(), jobID, "transcription", h.timeout)
	defer cancel()

	if h.logger != nil {
		h.logger.Info("🚀 Transcription job started",
			zap.String("job_id", jobID.String()),
			zap.Int("bytes", len(audio)),
			zap.Bool("voiceprint", req.EnableVoiceprint),
		)
	}

	result := h.fuser.Fuse(ctx, path, fusion.Options{
		EnableVoiceprint: req.EnableVoiceprint,
		Language:         req.Language,
		NumSpeakers:      req.NumSpeakers,
	})

	if h.logger != nil {
		h.logger.Info("✅ Transcription job finished",
			zap.String("job_id", jobID.String()),
			zap.String("mode", string(result.Mode)),
			zap.Int("segments", len(result.Segments)),
			zap.Int("warnings", len(result.Warnings)),
			zap.Duration("elapsed", jobcontext.Elapsed(ctx)),
		)
	}
	return HandleSuccess(h.logger, c, result)
}

// spool writes the upload to a temp file the engines can read by path
func (h *Transcription) spool(audio []byte) (string, func(), error) {
	f, err := os.CreateTemp(h.tempDir, "upload-*.wav")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(audio); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
