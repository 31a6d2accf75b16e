package fusion

import (
	"context"
	"fmt"
	"os"

	"github.com/johnquangdev/meeting-transcriber/pkg/wav"
)

// SegmentExtractor cuts [start, end) out of an audio file into a temporary
// artifact. The returned cleanup must be called on every path.
type SegmentExtractor interface {
	Extract(ctx context.Context, audioPath string, start, end float64) (path string, cleanup func(), err error)
}

// WAVExtractor slices PCM WAV files into temp files under dir
type WAVExtractor struct {
	dir string
}

// NewWAVExtractor creates an extractor writing to dir ("" means os.TempDir)
func NewWAVExtractor(dir string) *WAVExtractor {
	return &WAVExtractor{dir: dir}
}

// Extract implements SegmentExtractor
func (x *WAVExtractor) Extract(ctx context.Context, audioPath string, start, end float64) (string, func(), error) {
	if err := ctx.Err(); err != nil {
		return "", func() {}, err
	}
	data, err := wav.SliceFile(audioPath, start, end)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to slice %.2f-%.2fs: %w", start, end, err)
	}

	f, err := os.CreateTemp(x.dir, "segment-*.wav")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp segment: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp segment: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to close temp segment: %w", err)
	}
	return name, cleanup, nil
}
