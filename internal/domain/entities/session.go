package entities

import (
	"time"
)

// SessionState is the lifecycle state of a realtime transcription session
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateStreaming  SessionState = "streaming"
	SessionStateDraining   SessionState = "draining"
	SessionStateClosed     SessionState = "closed"
	SessionStateError      SessionState = "error"
)

// IsTerminal reports whether no further transitions are possible
func (s SessionState) IsTerminal() bool {
	return s == SessionStateClosed
}

// AudioFormat is negotiated with the streaming engine at handshake
type AudioFormat struct {
	SampleRate    int    `json:"sample_rate"`
	Encoding      string `json:"encoding"`
	Mode          string `json:"mode"`
	ChunkSize     [3]int `json:"chunk_size"`
	ChunkInterval int    `json:"chunk_interval"`
	WavName       string `json:"wav_name,omitempty"`
	Hotwords      string `json:"hotwords,omitempty"`
}

// DefaultAudioFormat is 16kHz mono PCM in two-pass mode
func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate:    16000,
		Encoding:      "pcm",
		Mode:          "2pass",
		ChunkSize:     [3]int{5, 10, 5},
		ChunkInterval: 10,
	}
}

// RealtimeSession is a read-only view of a live session
type RealtimeSession struct {
	ID                string       `json:"id"`
	MeetingID         string       `json:"meeting_id"`
	OwnerID           string       `json:"owner_id"`
	State             SessionState `json:"state"`
	Format            AudioFormat  `json:"format"`
	ReconnectAttempts int          `json:"reconnect_attempts"`
	LastActivity      time.Time    `json:"last_activity"`
	CreatedAt         time.Time    `json:"created_at"`
}

// EventType is the kind of event delivered to a session subscriber
type EventType string

const (
	EventPartial   EventType = "partial"
	EventFinal     EventType = "final"
	EventError     EventType = "error"
	EventCompleted EventType = "completed"
)

// IsTerminal reports whether the event ends the subscription
func (t EventType) IsTerminal() bool {
	return t == EventError || t == EventCompleted
}

// Event is a translated engine result or lifecycle notification
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Text      string          `json:"text,omitempty"`
	Start     float64         `json:"start,omitempty"`
	End       float64         `json:"end,omitempty"`
	Words     []WordTimestamp `json:"words,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamResult is one decoded message from the streaming engine.
// IsFinal marks a settled sentence; EndOfStream marks the engine's last
// result after the end marker.
type StreamResult struct {
	Text        string
	Mode        string
	IsFinal     bool
	Partial     bool
	EndOfStream bool
	Words     []WordTimestamp
	Sentences []Sentence
}
