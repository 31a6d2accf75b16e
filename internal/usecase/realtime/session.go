package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// session is the live state of one streaming session.
// mu guards the connection fields; sendMu serializes audio so that at most
// one chunk per session is in flight; emitMu serializes event delivery with
// closing the channel.
type session struct {
	id        string
	meetingID string
	ownerID   string
	format    entities.AudioFormat
	createdAt time.Time

	// canceled when the session closes
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        entities.SessionState
	stream       engine.Stream
	ready        chan struct{}
	readyClosed  bool
	stopping     bool
	attempts     int
	lastActivity time.Time

	sendMu sync.Mutex

	emitMu       sync.Mutex
	events       chan entities.Event
	eventsClosed bool

	finalCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, req StartRequest, format entities.AudioFormat, buffer int) *session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &session{
		id:           id,
		meetingID:    req.MeetingID,
		ownerID:      req.OwnerID,
		format:       format,
		createdAt:    now,
		ctx:          ctx,
		cancel:       cancel,
		state:        entities.SessionStateIdle,
		ready:        make(chan struct{}),
		lastActivity: now,
		events:       make(chan entities.Event, buffer),
		finalCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

func (s *session) setState(state entities.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}
	s.state = state
}

func (s *session) snapshot() entities.RealtimeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.RealtimeSession{
		ID:                s.id,
		MeetingID:         s.meetingID,
		OwnerID:           s.ownerID,
		State:             s.state,
		Format:            s.format,
		ReconnectAttempts: s.attempts,
		LastActivity:      s.lastActivity,
		CreatedAt:         s.createdAt,
	}
}

// attach makes stream the live connection. It reports false when the
// session is already stopping, in which case the caller owns stream.
func (s *session) attach(stream engine.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping || s.state.IsTerminal() {
		return false
	}
	s.stream = stream
	s.state = entities.SessionStateStreaming
	if !s.readyClosed {
		close(s.ready)
		s.readyClosed = true
	}
	return true
}

// detach drops stream if it is still the live connection and closes it
func (s *session) detach(stream engine.Stream) {
	s.mu.Lock()
	if stream == nil || s.stream != stream {
		s.mu.Unlock()
		return
	}
	s.stream = nil
	if s.readyClosed {
		s.ready = make(chan struct{})
		s.readyClosed = false
	}
	s.mu.Unlock()
	_ = stream.Close()
}

func (s *session) current() (engine.Stream, <-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream, s.ready, s.stopping
}

// beginStop moves the session to draining. first is false when a stop or
// close is already under way.
func (s *session) beginStop() (stream engine.Stream, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil, false
	}
	s.stopping = true
	s.state = entities.SessionStateDraining
	return s.stream, true
}

func (s *session) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) incAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *session) resetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

func (s *session) signalFinal() {
	select {
	case s.finalCh <- struct{}{}:
	default:
	}
}

// translate maps an engine result to a subscriber event. Empty results
// are dropped.
func translate(sessionID string, res *entities.StreamResult) (entities.Event, bool) {
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return entities.Event{}, false
	}
	ev := entities.Event{
		Type:      entities.EventPartial,
		SessionID: sessionID,
		Text:      text,
		Words:     res.Words,
		Timestamp: time.Now(),
	}
	if res.IsFinal {
		ev.Type = entities.EventFinal
	}
	switch {
	case len(res.Sentences) > 0:
		ev.Start = res.Sentences[0].Start
		ev.End = res.Sentences[len(res.Sentences)-1].End
	case len(res.Words) > 0:
		ev.Start = res.Words[0].Start
		ev.End = res.Words[len(res.Words)-1].End
	}
	return ev, true
}

func mergeFormat(f entities.AudioFormat, meetingID string) entities.AudioFormat {
	def := entities.DefaultAudioFormat()
	if f.SampleRate <= 0 {
		f.SampleRate = def.SampleRate
	}
	if f.Encoding == "" {
		f.Encoding = def.Encoding
	}
	if f.Mode == "" {
		f.Mode = def.Mode
	}
	if f.ChunkSize == [3]int{} {
		f.ChunkSize = def.ChunkSize
	}
	if f.ChunkInterval <= 0 {
		f.ChunkInterval = def.ChunkInterval
	}
	if f.WavName == "" {
		f.WavName = meetingID
	}
	return f
}
