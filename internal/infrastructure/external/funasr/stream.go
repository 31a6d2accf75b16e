package funasr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// Dialer opens websocket streams against the FunASR online server
type Dialer struct {
	url          string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	logger       *zap.Logger
}

var _ engine.StreamDialer = (*Dialer)(nil)

// NewDialer creates a stream dialer for a ws:// or wss:// endpoint
func NewDialer(url string, logger *zap.Logger) *Dialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 10 * time.Second
	return &Dialer{
		url:          url,
		dialer:       &d,
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Dial connects and sends the configuration handshake
func (d *Dialer) Dial(ctx context.Context, format entities.AudioFormat) (engine.Stream, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("%w: funasr websocket connect: %v, status=%s, body=%s",
				entities.ErrEngineUnavailable, err, resp.Status, string(body))
		}
		return nil, fmt.Errorf("%w: funasr websocket connect: %v", entities.ErrEngineUnavailable, err)
	}

	s := &wsStream{conn: conn, writeTimeout: d.writeTimeout}
	if err := s.writeJSON(newHandshake(format)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: funasr handshake: %v", entities.ErrEngineUnavailable, err)
	}
	if d.logger != nil {
		d.logger.Debug("🔌 FunASR stream opened",
			zap.String("wav_name", format.WavName),
			zap.String("mode", format.Mode),
			zap.Int("sample_rate", format.SampleRate),
		)
	}
	return s, nil
}

type wsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *wsStream) SendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func (s *wsStream) SendEnd() error {
	return s.writeJSON(endMarker{IsSpeaking: false})
}

func (s *wsStream) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Recv blocks for the next result. Connection failures come back as plain
// errors; payloads the engine should never send wrap entities.ErrProtocol.
func (s *wsStream) Recv() (*entities.StreamResult, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("funasr stream closed: %w", io.EOF)
			}
			return nil, fmt.Errorf("ws read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return decodeStreamMessage(data)
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// WriteControl may run concurrently with a blocked writer
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
