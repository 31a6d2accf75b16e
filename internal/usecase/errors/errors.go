package errors

import (
	"errors"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// Voiceprint errors
var (
	ErrInsufficientSamples = errors.New("insufficient samples")
	ErrTooManySamples      = errors.New("too many samples")
	ErrNotOwner            = errors.New("caller is not the profile owner")
	ErrProfileNotFound     = errors.New("voiceprint profile not found")
	ErrInvalidEmbedding    = errors.New("invalid embedding")
	ErrInvalidAudio        = errors.New("invalid audio sample")
)

// Realtime session errors
var (
	ErrSessionAlreadyActive     = errors.New("session already active for meeting")
	ErrSessionNotFound          = errors.New("session not found")
	ErrReconnectLimitExceeded   = errors.New("reconnect limit exceeded")
	ErrSessionOwnerDisconnected = errors.New("session owner disconnected")
)

// Engine errors
var (
	ErrEngineUnavailable = entities.ErrEngineUnavailable
	ErrProtocol          = entities.ErrProtocol
)
