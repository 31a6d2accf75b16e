// Package ai wraps hosted speech-to-text providers behind engine.Transcriber
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

var errNotConfigured = errors.New("assemblyai client not configured")

// AssemblyAITranscriber runs batch transcription through the official SDK
type AssemblyAITranscriber struct {
	client          *aai.Client
	defaultLanguage string
	logger          *zap.Logger
}

var _ engine.Transcriber = (*AssemblyAITranscriber)(nil)

// NewAssemblyAITranscriber creates the transcriber. If apiKey is empty,
// falls back to ASSEMBLYAI_API_KEY.
func NewAssemblyAITranscriber(apiKey, defaultLanguage string, logger *zap.Logger) *AssemblyAITranscriber {
	if apiKey == "" {
		apiKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	t := &AssemblyAITranscriber{defaultLanguage: defaultLanguage, logger: logger}
	if apiKey != "" {
		t.client = aai.NewClient(apiKey)
	}
	return t
}

// Transcribe uploads the file and waits for the finished transcript.
// Words are returned without sentence grouping.
func (t *AssemblyAITranscriber) Transcribe(ctx context.Context, audioPath string, opts engine.TranscribeOptions) (*entities.Transcript, error) {
	if t.client == nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrEngineUnavailable, errNotConfigured)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	start := time.Now()
	if t.logger != nil {
		t.logger.Info("📤 Uploading file to AssemblyAI", zap.String("audio", filepath.Base(audioPath)))
	}
	uploadURL, err := t.client.Upload(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upload to AssemblyAI: %v", entities.ErrEngineUnavailable, err)
	}

	language := opts.Language
	if language == "" {
		language = t.defaultLanguage
	}
	params := &aai.TranscriptOptionalParams{Punctuate: aai.Bool(true)}
	if language != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(language)
	} else {
		params.LanguageDetection = aai.Bool(true)
	}

	transcript, err := t.client.Transcripts.TranscribeFromURL(ctx, uploadURL, params)
	if err != nil {
		if t.logger != nil {
			t.logger.Error("❌ AssemblyAI transcription failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: assemblyai transcription: %v", entities.ErrEngineUnavailable, err)
	}
	if transcript.Status == aai.TranscriptStatusError {
		msg := "AssemblyAI transcription failed"
		if transcript.Error != nil {
			msg = fmt.Sprintf("AssemblyAI error: %s", *transcript.Error)
		}
		return nil, fmt.Errorf("%w: %s", entities.ErrEngineUnavailable, msg)
	}

	out := fromAssemblyAI(transcript)
	if t.logger != nil {
		t.logger.Info("✅ Received transcript from AssemblyAI",
			zap.String("language", out.Language),
			zap.Int("word_count", len(out.Words)),
			zap.Duration("took", time.Since(start)),
		)
	}
	return out, nil
}

// fromAssemblyAI converts an SDK transcript, millisecond stamps to seconds
func fromAssemblyAI(tr aai.Transcript) *entities.Transcript {
	out := &entities.Transcript{Language: string(tr.LanguageCode)}
	if tr.Text != nil {
		out.Text = *tr.Text
	}
	if tr.AudioDuration != nil {
		out.Duration = float64(*tr.AudioDuration)
	}

	out.Words = make([]entities.WordTimestamp, 0, len(tr.Words))
	for _, w := range tr.Words {
		word := entities.WordTimestamp{}
		if w.Text != nil {
			word.Word = *w.Text
		}
		if w.Start != nil {
			word.Start = float64(*w.Start) / 1000.0
		}
		if w.End != nil {
			word.End = float64(*w.End) / 1000.0
		}
		if w.Confidence != nil {
			word.Confidence = *w.Confidence
		}
		if word.Word == "" || word.End < word.Start {
			continue
		}
		out.Words = append(out.Words, word)
	}
	return out
}
