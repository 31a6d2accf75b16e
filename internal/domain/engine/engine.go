// Package engine declares the contracts of the external speech engines:
// the speaker service (diarization, embeddings) and the ASR engines
// (batch and streaming).
package engine

import (
	"context"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// Diarizer splits a file into locally labelled speaker turns
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]entities.DiarizationSegment, error)
}

// Embedder turns one audio clip into a fixed-dimension speaker embedding
type Embedder interface {
	Embed(ctx context.Context, audio []byte) ([]float64, error)
}

// TranscribeOptions tunes a batch transcription
type TranscribeOptions struct {
	Language string
}

// Transcriber runs batch ASR over a whole file
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*entities.Transcript, error)
}

// Stream is one open streaming-recognition connection.
// SendAudio and SendEnd must not be called concurrently; Recv may run in
// its own goroutine.
type Stream interface {
	SendAudio(chunk []byte) error
	SendEnd() error
	Recv() (*entities.StreamResult, error)
	Close() error
}

// StreamDialer opens a stream and completes the configuration handshake
type StreamDialer interface {
	Dial(ctx context.Context, format entities.AudioFormat) (Stream, error)
}

// HealthChecker is implemented by engines that expose a health check
type HealthChecker interface {
	Health(ctx context.Context) error
}
