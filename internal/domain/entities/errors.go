package entities

import "errors"

// Domain errors
var (
	// Engine boundary errors. Infrastructure clients wrap these so callers can
	// tell a dead engine from a misbehaving one.
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrProtocol          = errors.New("engine protocol error")

	// Embedding errors
	ErrEmptyEmbedding       = errors.New("embedding is empty")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrInvalidTimeRange     = errors.New("segment end must be after start")
	ErrInvalidAudioDuration = errors.New("audio duration out of range")
)
