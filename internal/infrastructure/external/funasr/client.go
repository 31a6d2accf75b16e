// Package funasr talks to the FunASR engine: the REST recognizer for whole
// files and the websocket endpoint for live streams.
package funasr

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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
)

const maxResponseBytes = 32 << 20

// Client is the batch Transcriber backed by POST /api/recognize
type Client struct {
	baseURL string
	client  *http.Client
	retry   jobcontext.RetryPolicy
	logger  *zap.Logger
}

var _ engine.Transcriber = (*Client)(nil)

// NewClient creates a FunASR REST client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
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

type recognizeSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type recognizeResponse struct {
	Success    bool               `json:"success"`
	Text       string             `json:"text"`
	Duration   float64            `json:"duration"`
	SampleRate int                `json:"sample_rate"`
	Segments   []recognizeSegment `json:"segments"`
	Timestamp  json.RawMessage    `json:"timestamp"`
	Error      string             `json:"error"`
}

// Transcribe recognizes the whole file. Word stamps are returned when the
// engine has them; otherwise its segments become sentences.
func (c *Client) Transcribe(ctx context.Context, audioPath string, opts engine.TranscribeOptions) (*entities.Transcript, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	start := time.Now()
	var out recognizeResponse
	err = jobcontext.Retry(ctx, c.retry, func() error {
		out = recognizeResponse{}
		return c.recognize(ctx, filepath.Base(audioPath), audio, &out)
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("⚠️ FunASR recognize failed",
				zap.String("audio", filepath.Base(audioPath)),
				zap.Duration("took", time.Since(start)),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("%w: funasr recognize: %v", entities.ErrEngineUnavailable, err)
	}

	t, err := toTranscript(&out, opts.Language)
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Info("📝 FunASR transcription completed",
			zap.String("audio", filepath.Base(audioPath)),
			zap.Float64("duration", t.Duration),
			zap.Int("words", len(t.Words)),
			zap.Int("sentences", len(t.Sentences)),
			zap.Duration("took", time.Since(start)),
		)
	}
	return t, nil
}

func (c *Client) recognize(ctx context.Context, filename string, audio []byte, out *recognizeResponse) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(audio); err != nil {
		return err
	}
	for _, field := range []string{"enable_vad", "enable_punc", "enable_timestamp"} {
		if err := w.WriteField(field, "true"); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/recognize", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

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
		body := string(raw)
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		return &jobcontext.StatusError{Service: "funasr", StatusCode: resp.StatusCode, Body: body}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: invalid funasr response: %v", entities.ErrProtocol, err)
	}
	if !out.Success {
		return fmt.Errorf("funasr rejected request: %s", out.Error)
	}
	return nil
}

func toTranscript(r *recognizeResponse, language string) (*entities.Transcript, error) {
	words, err := parseTimestamps(r.Timestamp, r.Text)
	if err != nil {
		return nil, err
	}
	t := &entities.Transcript{
		Text:     strings.TrimSpace(r.Text),
		Language: language,
		Duration: r.Duration,
		Words:    words,
	}
	if len(words) > 0 {
		return t, nil
	}
	for _, s := range r.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.End < s.Start {
			continue
		}
		t.Sentences = append(t.Sentences, entities.Sentence{Text: text, Start: s.Start, End: s.End})
	}
	return t, nil
}

// Health checks the engine
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: funasr: %v", entities.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: funasr health returned %d", entities.ErrEngineUnavailable, resp.StatusCode)
	}
	return nil
}
