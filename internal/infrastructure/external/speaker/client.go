// Package speaker is the HTTP client of the speaker service, which runs
// diarization and produces voiceprint embeddings.
package speaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
)

const (
	maxResponseBytes = 16 << 20
	embeddingPath    = "/api/speaker/embedding"
)

// Client talks to the speaker service. Safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	retry   jobcontext.RetryPolicy
	logger  *zap.Logger
}

// NewClient creates a speaker service client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   jobcontext.DefaultRetryPolicy,
		logger:  logger,
	}
}

// WithRetryPolicy overrides the retry schedule
func (c *Client) WithRetryPolicy(p jobcontext.RetryPolicy) *Client {
	c.retry = p
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type diarizationData struct {
	Segments []struct {
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
		SpeakerID  string  `json:"speaker_id"`
		Confidence float64 `json:"confidence"`
	} `json:"segments"`
	NumSpeakers int `json:"num_speakers"`
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

// Diarize splits the file at audioPath into labelled speaker turns.
// numSpeakers <= 0 lets the service estimate the count.
func (c *Client) Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]entities.DiarizationSegment, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	fields := map[string]string{}
	if numSpeakers > 0 {
		fields["num_speakers"] = strconv.Itoa(numSpeakers)
	}

	var data diarizationData
	if err := c.post(ctx, "/api/speaker/diarization", filepath.Base(audioPath), audio, fields, &data); err != nil {
		return nil, err
	}

	segments := make([]entities.DiarizationSegment, 0, len(data.Segments))
	for _, s := range data.Segments {
		segments = append(segments, entities.DiarizationSegment{
			Start:      s.StartTime,
			End:        s.EndTime,
			Label:      s.SpeakerID,
			Confidence: s.Confidence,
		})
	}
	if c.logger != nil {
		c.logger.Debug("🗣️ Diarization completed",
			zap.String("audio", filepath.Base(audioPath)),
			zap.Int("segments", len(segments)),
			zap.Int("speakers", data.NumSpeakers),
		)
	}
	return segments, nil
}

// Embed extracts a speaker embedding from one WAV clip
func (c *Client) Embed(ctx context.Context, audio []byte) ([]float64, error) {
	var data embeddingData
	if err := c.post(ctx, embeddingPath, "segment.wav", audio, nil, &data); err != nil {
		return nil, err
	}
	if len(data.Embedding) == 0 {
		return nil, fmt.Errorf("%w: speaker service returned no vector", entities.ErrEmptyEmbedding)
	}
	return data.Embedding, nil
}

// Health checks the service and that it serves the embedding route.
// Services without the route answer 404 there, which would fail every
// enrollment, so that counts as unhealthy.
func (c *Client) Health(ctx context.Context) error {
	status, err := c.status(ctx, "/api/health")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: speaker service health returned %d", entities.ErrEngineUnavailable, status)
	}

	status, err = c.status(ctx, embeddingPath)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: speaker service lacks POST %s", entities.ErrEngineUnavailable, embeddingPath)
	}
	return nil
}

// status issues a GET and returns only the response code
func (c *Client) status(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: speaker service: %v", entities.ErrEngineUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) post(ctx context.Context, path, filename string, audio []byte, fields map[string]string, out interface{}) error {
	start := time.Now()
	attempt := 0
	err := jobcontext.Retry(ctx, c.retry, func() error {
		attempt++
		body, contentType, err := multipartBody(filename, audio, fields)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return &jobcontext.StatusError{Service: "speaker", StatusCode: resp.StatusCode, Body: truncate(raw)}
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%w: invalid speaker response: %v", entities.ErrProtocol, err)
		}
		if !env.Success {
			msg := env.Error
			if msg == "" {
				msg = env.Message
			}
			return fmt.Errorf("speaker service rejected request: %s", msg)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: invalid speaker payload: %v", entities.ErrProtocol, err)
		}
		return nil
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("⚠️ Speaker service call failed",
				zap.String("path", path),
				zap.Int("attempts", attempt),
				zap.Duration("took", time.Since(start)),
				zap.Error(err),
			)
		}
		return fmt.Errorf("%w: speaker %s: %v", entities.ErrEngineUnavailable, path, err)
	}
	return nil
}

func multipartBody(filename string, audio []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
