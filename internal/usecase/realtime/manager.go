// Package realtime runs streaming transcription sessions, one per meeting,
// on top of a streaming ASR engine.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/johnquangdev/meeting-transcriber/errors"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
)

// MeetingLock is an optional lease that keeps a meeting to one session
// across processes
type MeetingLock interface {
	Acquire(ctx context.Context, meetingID, holder string, ttl time.Duration) (bool, error)
	Refresh(ctx context.Context, meetingID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, meetingID, holder string) error
}

// TombstoneStore remembers recently closed session ids
type TombstoneStore interface {
	Set(key string, value string, expiration time.Duration)
	Get(key string) (string, bool)
}

// StartRequest opens a session for a meeting
type StartRequest struct {
	MeetingID string
	OwnerID   string
	Format    entities.AudioFormat
}

// Subscription is handed to the caller of StartSession. Events is closed
// after exactly one terminal event (completed or error).
type Subscription struct {
	SessionID string
	Events    <-chan entities.Event
}

// Manager owns every realtime session of this process
type Manager struct {
	dialer     engine.StreamDialer
	registry   *SessionRegistry
	tombstones TombstoneStore
	lock       MeetingLock
	cfg        Config
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewManager creates a session manager. lock may be nil for single-node
// deployments.
func NewManager(dialer engine.StreamDialer, tombstones TombstoneStore, lock MeetingLock, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dialer:     dialer,
		registry:   NewSessionRegistry(),
		tombstones: tombstones,
		lock:       lock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Registry exposes the live session index
func (m *Manager) Registry() *SessionRegistry {
	return m.registry
}

// StartSession opens the engine stream for a meeting. A meeting with a live
// session is rejected with ErrSessionAlreadyActive.
func (m *Manager) StartSession(ctx context.Context, req StartRequest) (*Subscription, error) {
	if strings.TrimSpace(req.MeetingID) == "" {
		return nil, fmt.Errorf("%w: meeting id is required", ucerrors.ErrInvalidInput)
	}

	s := newSession(uuid.NewString(), req, mergeFormat(req.Format, req.MeetingID), m.cfg.EventBuffer)
	if err := m.registry.reserve(s); err != nil {
		s.cancel()
		return nil, err
	}

	if m.lock != nil {
		ok, err := m.lock.Acquire(ctx, s.meetingID, s.id, m.cfg.LockTTL)
		if err != nil || !ok {
			m.registry.remove(s)
			s.cancel()
			if err != nil {
				return nil, err
			}
			return nil, ucerrors.ErrSessionAlreadyActive
		}
	}

	s.setState(entities.SessionStateConnecting)
	stream, err := m.dial(ctx, s)
	if err != nil {
		m.releaseLock(s)
		m.registry.remove(s)
		s.cancel()
		m.logger.Error("❌ Failed to open realtime stream",
			zap.String("meeting_id", s.meetingID),
			zap.Error(err),
		)
		return nil, err
	}
	s.attach(stream)

	m.wg.Add(1)
	go m.run(s, stream)
	if m.lock != nil {
		m.wg.Add(1)
		go m.keepLock(s)
	}

	m.logger.Info("🎙️ Realtime session started",
		zap.String("session_id", s.id),
		zap.String("meeting_id", s.meetingID),
		zap.String("owner_id", s.ownerID),
		zap.Int("sample_rate", s.format.SampleRate),
		zap.String("mode", s.format.Mode),
	)
	return &Subscription{SessionID: s.id, Events: s.events}, nil
}

// SendAudioChunk forwards one chunk to the engine. Chunks of a session are
// delivered in call order; during a reconnect the call waits for the new
// connection, bounded by ctx and SendTimeout.
func (m *Manager) SendAudioChunk(ctx context.Context, sessionID string, chunk []byte) error {
	s, ok := m.registry.get(sessionID)
	if !ok {
		return ucerrors.ErrSessionNotFound
	}
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	timer := time.NewTimer(m.cfg.SendTimeout)
	defer timer.Stop()

	for {
		stream, ready, stopping := s.current()
		if stopping {
			return ucerrors.ErrSessionNotFound
		}
		if stream != nil {
			if err := stream.SendAudio(chunk); err != nil {
				m.logger.Warn("⚠️ Failed to send audio chunk, waiting for reconnect",
					zap.String("session_id", s.id),
					zap.Error(err),
				)
				s.detach(stream)
				continue
			}
			s.touch()
			return nil
		}

		select {
		case <-ready:
		case <-s.ctx.Done():
			return ucerrors.ErrSessionNotFound
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: stream not ready within %s", ucerrors.ErrEngineUnavailable, m.cfg.SendTimeout)
		}
	}
}

// StopSession sends the end-of-audio marker, waits up to DrainTimeout for
// a final result and closes the session. Stopping a closed session is a
// no-op.
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	s, ok := m.registry.get(sessionID)
	if !ok {
		// finish writes the tombstone before leaving the registry
		if _, closed := m.tombstones.Get(tombstoneKey(sessionID)); closed {
			return nil
		}
		return ucerrors.ErrSessionNotFound
	}

	stream, first := s.beginStop()
	if !first {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.sendMu.Lock()
	var endErr error
	if stream != nil {
		endErr = stream.SendEnd()
	}
	s.sendMu.Unlock()

	if stream != nil && endErr == nil {
		timer := time.NewTimer(m.cfg.DrainTimeout)
		select {
		case <-s.finalCh:
		case <-s.done:
		case <-ctx.Done():
		case <-timer.C:
			m.logger.Warn("⏱️ Drain timeout, closing without final result",
				zap.String("session_id", s.id),
				zap.Duration("timeout", m.cfg.DrainTimeout),
			)
		}
		timer.Stop()
	} else if endErr != nil {
		m.logger.Warn("⚠️ Failed to send end of audio",
			zap.String("session_id", s.id),
			zap.Error(endErr),
		)
	}

	m.finish(s, entities.Event{Type: entities.EventCompleted})
	return nil
}

// CloseOwner force-closes every session owned by ownerID and returns how
// many were closed
func (m *Manager) CloseOwner(ownerID string) int {
	closed := 0
	for _, s := range m.registry.ownedBy(ownerID) {
		if m.fail(s, apperrors.ErrorCode_SESSION_OWNER_DISCONNECTED, ucerrors.ErrSessionOwnerDisconnected) {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("🔌 Closed sessions of disconnected owner",
			zap.String("owner_id", ownerID),
			zap.Int("sessions", closed),
		)
	}
	return closed
}

// Get returns a snapshot of a live session
func (m *Manager) Get(sessionID string) (*entities.RealtimeSession, error) {
	s, ok := m.registry.get(sessionID)
	if !ok {
		return nil, ucerrors.ErrSessionNotFound
	}
	snap := s.snapshot()
	return &snap, nil
}

// ActiveSession returns the live session of a meeting
func (m *Manager) ActiveSession(meetingID string) (*entities.RealtimeSession, error) {
	s, ok := m.registry.byMeetingID(meetingID)
	if !ok {
		return nil, ucerrors.ErrSessionNotFound
	}
	snap := s.snapshot()
	return &snap, nil
}

// Shutdown stops every session and waits for their goroutines
func (m *Manager) Shutdown(ctx context.Context) error {
	sessions := m.registry.all()
	m.logger.Info("🛑 Shutting down realtime sessions", zap.Int("sessions", len(sessions)))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		id := s.id
		g.Go(func() error {
			return m.StopSession(gctx, id)
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range m.registry.all() {
			m.fail(s, apperrors.ErrorCode_INTERNAL, errors.New("server shutting down"))
		}
		return ctx.Err()
	}
}

func (m *Manager) dial(ctx context.Context, s *session) (engine.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()
	return m.dialer.Dial(ctx, s.format)
}

// run reads engine results for the session's lifetime and reconnects
// after connection-level failures
func (m *Manager) run(s *session, stream engine.Stream) {
	defer m.wg.Done()

	bo := m.cfg.reconnectBackOff(s.ctx)
	for {
		err := m.pump(s, stream, bo)
		if s.isClosed() {
			return
		}
		if s.isStopping() {
			// engine hung up after the end marker
			s.signalFinal()
			return
		}
		if errors.Is(err, entities.ErrProtocol) {
			m.fail(s, apperrors.ErrorCode_SESSION_PROTOCOL_ERROR, err)
			return
		}

		m.logger.Warn("⚠️ Realtime stream lost",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
		next, ok := m.reconnect(s, stream, bo, err)
		if !ok {
			return
		}
		stream = next
	}
}

func (m *Manager) pump(s *session, stream engine.Stream, bo backoff.BackOff) error {
	delivered := false
	for {
		res, err := stream.Recv()
		if err != nil {
			return err
		}
		s.touch()
		if !delivered {
			delivered = true
			bo.Reset()
			s.resetAttempts()
		}
		if ev, ok := translate(s.id, res); ok {
			m.emit(s, ev)
		}
		if res.EndOfStream && s.isStopping() {
			s.signalFinal()
		}
	}
}

func (m *Manager) reconnect(s *session, old engine.Stream, bo backoff.BackOff, cause error) (engine.Stream, bool) {
	s.detach(old)
	s.setState(entities.SessionStateError)

	for {
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			if s.ctx.Err() != nil || s.isStopping() {
				return nil, false
			}
			m.fail(s, apperrors.ErrorCode_RECONNECT_LIMIT_EXCEEDED,
				fmt.Errorf("%w after %d attempts: %v", ucerrors.ErrReconnectLimitExceeded, m.cfg.MaxReconnects, cause))
			return nil, false
		}

		attempt := s.incAttempts()
		m.logger.Info("🔄 Reconnecting realtime session",
			zap.String("session_id", s.id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
		if s.isStopping() {
			return nil, false
		}

		s.setState(entities.SessionStateConnecting)
		stream, err := m.dial(s.ctx, s)
		if err != nil {
			if errors.Is(err, entities.ErrProtocol) {
				m.fail(s, apperrors.ErrorCode_SESSION_PROTOCOL_ERROR, err)
				return nil, false
			}
			cause = err
			s.setState(entities.SessionStateError)
			continue
		}
		if !s.attach(stream) {
			_ = stream.Close()
			return nil, false
		}

		m.logger.Info("✅ Realtime session reconnected",
			zap.String("session_id", s.id),
			zap.Int("attempt", attempt),
		)
		return stream, true
	}
}

func (m *Manager) keepLock(s *session) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		ok, err := m.lock.Refresh(s.ctx, s.meetingID, s.id, m.cfg.LockTTL)
		if err != nil {
			m.logger.Warn("⚠️ Failed to refresh meeting lock",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			m.fail(s, apperrors.ErrorCode_SESSION_ALREADY_ACTIVE, errors.New("meeting lock lost"))
			return
		}
	}
}

func (m *Manager) releaseLock(s *session) {
	if m.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.lock.Release(ctx, s.meetingID, s.id); err != nil {
		m.logger.Warn("⚠️ Failed to release meeting lock",
			zap.String("meeting_id", s.meetingID),
			zap.Error(err),
		)
	}
}

// emit delivers a non-terminal event in engine order. It gives up when
// the session closes.
func (m *Manager) emit(s *session, ev entities.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (m *Manager) fail(s *session, code apperrors.ErrorCode, err error) bool {
	closed := m.finish(s, entities.Event{
		Type:    entities.EventError,
		Code:    code.String(),
		Message: err.Error(),
	})
	if closed {
		m.logger.Error("❌ Realtime session failed",
			zap.String("session_id", s.id),
			zap.String("code", code.String()),
			zap.Error(err),
		)
	}
	return closed
}

// finish closes the session exactly once: it releases the connection,
// delivers the terminal event and closes the event channel
func (m *Manager) finish(s *session, terminal entities.Event) bool {
	first := false
	s.closeOnce.Do(func() {
		first = true

		s.mu.Lock()
		s.state = entities.SessionStateClosed
		s.stopping = true
		stream := s.stream
		s.stream = nil
		s.mu.Unlock()

		s.cancel()
		if stream != nil {
			_ = stream.Close()
		}

		m.deliverTerminal(s, terminal)
		m.tombstones.Set(tombstoneKey(s.id), string(terminal.Type), m.cfg.TombstoneTTL)
		m.registry.remove(s)
		m.releaseLock(s)
		close(s.done)

		m.logger.Info("🏁 Realtime session closed",
			zap.String("session_id", s.id),
			zap.String("meeting_id", s.meetingID),
			zap.String("reason", string(terminal.Type)),
			zap.Duration("lifetime", time.Since(s.createdAt)),
		)
	})
	return first
}

func (m *Manager) deliverTerminal(s *session, ev entities.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	ev.SessionID = s.id
	ev.Timestamp = time.Now()

	timer := time.NewTimer(m.cfg.DrainTimeout)
	select {
	case s.events <- ev:
	case <-timer.C:
		m.logger.Warn("⚠️ Subscriber not reading, dropping terminal event",
			zap.String("session_id", s.id),
		)
	}
	timer.Stop()

	close(s.events)
	s.eventsClosed = true
}

func tombstoneKey(sessionID string) string {
	return "realtime:closed:" + sessionID
}
