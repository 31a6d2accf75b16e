package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/errors"
	dto "github.com/johnquangdev/meeting-transcriber/internal/adapter/dto/voiceprint"
	"github.com/johnquangdev/meeting-transcriber/internal/adapter/presenter"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	vpUsecase "github.com/johnquangdev/meeting-transcriber/internal/usecase/voiceprint"
)

// Gallery is the part of the voiceprint gallery the API exposes
type Gallery interface {
	Enroll(ctx context.Context, req vpUsecase.EnrollRequest) (*entities.VoiceprintProfile, error)
	AddSamples(ctx context.Context, callerID, profileID uuid.UUID, samples [][]byte) (*entities.VoiceprintProfile, error)
	SoftDelete(ctx context.Context, callerID, profileID uuid.UUID) error
	Get(ctx context.Context, callerID, profileID uuid.UUID) (*entities.VoiceprintProfile, error)
	List(ctx context.Context, callerID uuid.UUID, filter vpUsecase.ListFilter) ([]*entities.VoiceprintProfile, error)
}

// Recognizer identifies the speaker of one clip
type Recognizer interface {
	MatchFor(ctx context.Context, callerID uuid.UUID, audio []byte, topK int) ([]entities.MatchCandidate, error)
	Threshold() float64
}

// Voiceprint handles voiceprint enrollment and identification requests
type Voiceprint struct {
	gallery    Gallery
	recognizer Recognizer
	logger     *zap.Logger
}

// NewVoiceprintHandler creates a new voiceprint handler
func NewVoiceprintHandler(gallery Gallery, recognizer Recognizer, logger *zap.Logger) *Voiceprint {
	return &Voiceprint{gallery: gallery, recognizer: recognizer, logger: logger}
}

// Enroll handles POST /voiceprints
func (h *Voiceprint) Enroll(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	var req dto.EnrollRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument(err.Error()))
	}

	samples, err := readAudioParts(c, "audio_files")
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	profile, err := h.gallery.Enroll(c.Request().Context(), vpUsecase.EnrollRequest{
		OwnerID:        userID,
		Name:           req.Name,
		Department:     req.Department,
		Email:          req.Email,
		IsPublic:       req.IsPublic,
		AllowedUserIDs: splitIDs(req.AllowedUserIDs),
		Samples:        samples,
	})
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	if h.logger != nil {
		h.logger.Info("🎙️ Voiceprint enrolled",
			zap.String("profile_id", profile.ID.String()),
			zap.String("owner_id", userID.String()),
			zap.Int("samples", profile.SampleCount),
		)
	}
	return handleSuccessStatus(h.logger, c, http.StatusCreated, presenter.ToProfileResponse(profile))
}

// AddSamples handles POST /voiceprints/:id/samples
func (h *Voiceprint) AddSamples(c echo.Context) error {
	userID, profileID, err := h.ids(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	samples, err := readAudioParts(c, "audio_files")
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	if len(samples) == 0 {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("audio_files is required"))
	}

	profile, err := h.gallery.AddSamples(c.Request().Context(), userID, profileID, samples)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, presenter.ToProfileResponse(profile))
}

// Get handles GET /voiceprints/:id
func (h *Voiceprint) Get(c echo.Context) error {
	userID, profileID, err := h.ids(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	profile, err := h.gallery.Get(c.Request().Context(), userID, profileID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, presenter.ToProfileResponse(profile))
}

// List handles GET /voiceprints
func (h *Voiceprint) List(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	req := dto.ListRequest{Page: 1, PageSize: 20}
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument(err.Error()))
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	profiles, err := h.gallery.List(c.Request().Context(), userID, vpUsecase.ListFilter{
		Query:     req.Query,
		OnlyOwned: req.OnlyOwned,
		Limit:     req.PageSize,
		Offset:    (req.Page - 1) * req.PageSize,
	})
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, &dto.ListResponse{
		Profiles: presenter.ToProfileResponses(profiles),
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// Delete handles DELETE /voiceprints/:id
func (h *Voiceprint) Delete(c echo.Context) error {
	userID, profileID, err := h.ids(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	if err := h.gallery.SoftDelete(c.Request().Context(), userID, profileID); err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, map[string]string{"id": profileID.String()})
}

// Recognize handles POST /voiceprints/recognize
func (h *Voiceprint) Recognize(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	var req dto.RecognizeRequest
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

	candidates, err := h.recognizer.MatchFor(c.Request().Context(), userID, audio, req.TopK)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, presenter.ToRecognizeResponse(candidates, h.recognizer.Threshold()))
}

func (h *Voiceprint) ids(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	userID, err := userIDFrom(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	profileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.ErrInvalidArgument("invalid voiceprint id")
	}
	return userID, profileID, nil
}

// splitIDs accepts a comma separated list of user ids
func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if _, err := uuid.Parse(part); err == nil {
			out = append(out, part)
		}
	}
	return out
}
