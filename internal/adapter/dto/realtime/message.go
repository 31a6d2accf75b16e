package realtime

import "github.com/johnquangdev/meeting-transcriber/internal/domain/entities"

// Control message types sent by websocket clients
const (
	MessageStart = "start"
	MessageStop  = "stop"
)

// ClientMessage is a text frame from a websocket client
type ClientMessage struct {
	Type      string                `json:"type"`
	MeetingID string                `json:"meeting_id,omitempty"`
	Format    *entities.AudioFormat `json:"format,omitempty"`
}

// StartedMessage acknowledges a started session
type StartedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MeetingID string `json:"meeting_id"`
}

// ErrorMessage reports a rejected control message
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
