package ai

import (
	"context"
	"errors"
	"testing"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

func TestFromAssemblyAI(t *testing.T) {
	tr := aai.Transcript{
		Text:          aai.String("hello team"),
		LanguageCode:  aai.TranscriptLanguageCode("en"),
		AudioDuration: aai.Int64(4),
		Words: []aai.TranscriptWord{
			{Text: aai.String("hello"), Start: aai.Int64(120), End: aai.Int64(480), Confidence: aai.Float64(0.98)},
			{Text: aai.String("team"), Start: aai.Int64(1500), End: aai.Int64(1900)},
			{Text: nil, Start: aai.Int64(2000), End: aai.Int64(2100)},
		},
	}

	out := fromAssemblyAI(tr)
	if out.Text != "hello team" || out.Language != "en" || out.Duration != 4 {
		t.Fatalf("unexpected transcript header %+v", out)
	}
	if len(out.Words) != 2 {
		t.Fatalf("expected empty words dropped, got %+v", out.Words)
	}
	if out.Words[0].Start != 0.12 || out.Words[0].End != 0.48 || out.Words[0].Confidence != 0.98 {
		t.Fatalf("expected seconds, got %+v", out.Words[0])
	}
	if len(out.Sentences) != 0 {
		t.Fatalf("sentences are left to the caller")
	}
}

func TestTranscribeWithoutKey(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "")
	tr := NewAssemblyAITranscriber("", "vi", nil)
	_, err := tr.Transcribe(context.Background(), "missing.wav", engine.TranscribeOptions{})
	if !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
}
