package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/internal/usecase/fusion"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
)

type fakeFuser struct {
	content  []byte
	opts     fusion.Options
	jobType  string
	deadline bool
	path     string
}

func (f *fakeFuser) Fuse(ctx context.Context, audioPath string, opts fusion.Options) *entities.FusionResult {
	f.path = audioPath
	f.opts = opts
	f.content, _ = os.ReadFile(audioPath)
	f.jobType, _ = jobcontext.GetJobType(ctx)
	_, f.deadline = ctx.Deadline()
	return &entities.FusionResult{
		Mode:         entities.FusionModeSingleSpeaker,
		SpeakerCount: 1,
		Segments:     []entities.TranscriptSegment{{Text: "hello"}},
	}
}

func TestTranscribeSpoolsUploadUnderJobContext(t *testing.T) {
	e := newEcho()
	fuser := &fakeFuser{}
	h := NewTranscriptionHandler(fuser, time.Minute, t.TempDir(), zap.NewNop())

	body, ct := multipartBody(t, map[string]string{
		"enable_voiceprint": "true",
		"language":          "en",
		"num_speakers":      "2",
	}, "audio", []byte("RIFF-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()

	if err := h.Transcribe(authed(e, req, rec, uuid.New())); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if string(fuser.content) != "RIFF-bytes" {
		t.Fatalf("engine saw %q", fuser.content)
	}
	if !fuser.opts.EnableVoiceprint || fuser.opts.Language != "en" || fuser.opts.NumSpeakers != 2 {
		t.Fatalf("unexpected options: %+v", fuser.opts)
	}
	if fuser.jobType != "transcription" || !fuser.deadline {
		t.Fatalf("expected transcription job with deadline, got %q %v", fuser.jobType, fuser.deadline)
	}
	if _, err := os.Stat(fuser.path); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed, stat err=%v", err)
	}

	var got entities.FusionResult
	decodeData(t, rec, &got)
	if got.Mode != entities.FusionModeSingleSpeaker || len(got.Segments) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestTranscribeRejectsBadSpeakerCount(t *testing.T) {
	e := newEcho()
	h := NewTranscriptionHandler(&fakeFuser{}, time.Minute, t.TempDir(), zap.NewNop())

	body, ct := multipartBody(t, map[string]string{"num_speakers": "99"}, "audio", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()

	if err := h.Transcribe(authed(e, req, rec, uuid.New())); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

type stubChecker struct{ err error }

func (p stubChecker) Health(context.Context) error { return p.err }

func TestHealthReportsDegradedEngine(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name   string
		checks map[string]engine.HealthChecker
		status int
	}{
		{"all ok", map[string]engine.HealthChecker{"speaker": stubChecker{}, "funasr": stubChecker{}}, http.StatusOK},
		{"speaker down", map[string]engine.HealthChecker{"speaker": stubChecker{errors.New("refused")}, "funasr": stubChecker{}}, http.StatusServiceUnavailable},
		{"nil checker skipped", map[string]engine.HealthChecker{"storage": nil}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("test", tt.checks)
			rec := httptest.NewRecorder()
			if err := h.Check(e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)); err != nil {
				t.Fatalf("check: %v", err)
			}
			if rec.Code != tt.status {
				t.Fatalf("expected %d got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}
