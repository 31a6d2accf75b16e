package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/errors"
	dto "github.com/johnquangdev/meeting-transcriber/internal/adapter/dto/realtime"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
	"github.com/johnquangdev/meeting-transcriber/internal/usecase/realtime"
)

const writeWait = 10 * time.Second

// SessionManager is the realtime session surface used by the websocket API
type SessionManager interface {
	StartSession(ctx context.Context, req realtime.StartRequest) (*realtime.Subscription, error)
	SendAudioChunk(ctx context.Context, sessionID string, chunk []byte) error
	StopSession(ctx context.Context, sessionID string) error
	CloseOwner(ownerID string) int
	Get(sessionID string) (*entities.RealtimeSession, error)
	ActiveSession(meetingID string) (*entities.RealtimeSession, error)
}

// Realtime bridges client websockets onto realtime sessions
type Realtime struct {
	manager  SessionManager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler creates a new realtime handler. An empty origin list or
// "*" accepts any origin.
func NewRealtimeHandler(manager SessionManager, allowedOrigins []string, logger *zap.Logger) *Realtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Realtime{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// connOwner scopes sessions to one websocket connection of one user
func connOwner(userID uuid.UUID) string {
	return userID.String() + "/" + uuid.NewString()
}

// Session handles GET /realtime/sessions/:id
func (h *Realtime) Session(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	snap, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	if !strings.HasPrefix(snap.OwnerID, userID.String()+"/") {
		return HandleError(h.logger, c, errors.ErrSessionNotFound(c.Param("id")))
	}
	return HandleSuccess(h.logger, c, snap)
}

// MeetingSession handles GET /realtime/meetings/:id/session and reports
// the live session of a meeting when the caller owns it
func (h *Realtime) MeetingSession(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	meetingID := c.Param("id")
	snap, err := h.manager.ActiveSession(meetingID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	if !strings.HasPrefix(snap.OwnerID, userID.String()+"/") {
		// same answer as an idle meeting
		return HandleError(h.logger, c, ucerrors.ErrSessionNotFound)
	}
	return HandleSuccess(h.logger, c, snap)
}

// Stream handles GET /realtime/ws. Text frames carry start and stop control
// messages, binary frames carry audio for the active session. Closing the
// socket force-closes its sessions.
func (h *Realtime) Stream(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("⚠️ Websocket upgrade failed", zap.Error(err))
		return nil
	}

	conn := &clientConn{
		ws:      ws,
		owner:   connOwner(userID),
		meeting: c.QueryParam("meeting_id"),
		manager: h.manager,
		logger:  h.logger,
	}
	h.logger.Info("🔗 Realtime client connected",
		zap.String("owner_id", conn.owner),
		zap.String("remote", c.RealIP()),
	)

	conn.serve(c.Request().Context())
	return nil
}

type clientConn struct {
	ws      *websocket.Conn
	owner   string
	meeting string
	manager SessionManager
	logger  *zap.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	active  string
	wg      sync.WaitGroup
}

func (cc *clientConn) serve(ctx context.Context) {
	defer func() {
		if n := cc.manager.CloseOwner(cc.owner); n > 0 {
			cc.logger.Info("🔌 Realtime client disconnected with live sessions",
				zap.String("owner_id", cc.owner),
				zap.Int("sessions", n),
			)
		}
		cc.wg.Wait()
		cc.ws.Close()
	}()

	for {
		msgType, data, err := cc.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cc.logger.Debug("websocket read ended", zap.String("owner_id", cc.owner), zap.Error(err))
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			cc.control(ctx, data)
		case websocket.BinaryMessage:
			cc.audio(ctx, data)
		}
	}
}

func (cc *clientConn) control(ctx context.Context, data []byte) {
	var msg dto.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cc.writeError(errors.ErrInvalidPayload())
		return
	}

	switch msg.Type {
	case dto.MessageStart:
		cc.start(ctx, msg)
	case dto.MessageStop:
		sid := cc.current()
		if sid == "" {
			cc.writeError(errors.ErrInvalidArgument("no active session"))
			return
		}
		if err := cc.manager.StopSession(ctx, sid); err != nil {
			cc.writeError(err)
		}
	default:
		cc.writeError(errors.ErrInvalidArgument("unknown message type: " + msg.Type))
	}
}

func (cc *clientConn) start(ctx context.Context, msg dto.ClientMessage) {
	if cc.current() != "" {
		cc.writeError(errors.ErrInvalidArgument("a session is already running on this connection"))
		return
	}

	meetingID := msg.MeetingID
	if meetingID == "" {
		meetingID = cc.meeting
	}
	req := realtime.StartRequest{MeetingID: meetingID, OwnerID: cc.owner}
	if msg.Format != nil {
		req.Format = *msg.Format
	}

	sub, err := cc.manager.StartSession(ctx, req)
	if err != nil {
		cc.writeError(err)
		return
	}

	cc.mu.Lock()
	cc.active = sub.SessionID
	cc.mu.Unlock()

	cc.write(dto.StartedMessage{Type: "started", SessionID: sub.SessionID, MeetingID: meetingID})

	cc.wg.Add(1)
	go cc.forward(sub)
}

// forward relays session events until the terminal one
func (cc *clientConn) forward(sub *realtime.Subscription) {
	defer cc.wg.Done()
	for ev := range sub.Events {
		cc.write(ev)
	}
	cc.mu.Lock()
	if cc.active == sub.SessionID {
		cc.active = ""
	}
	cc.mu.Unlock()
}

func (cc *clientConn) audio(ctx context.Context, chunk []byte) {
	sid := cc.current()
	if sid == "" {
		cc.writeError(errors.ErrInvalidArgument("start a session before sending audio"))
		return
	}
	if err := cc.manager.SendAudioChunk(ctx, sid, chunk); err != nil {
		cc.writeError(err)
	}
}

func (cc *clientConn) current() string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.active
}

func (cc *clientConn) writeError(err error) {
	appErr := toAppError(err)
	cc.write(dto.ErrorMessage{Type: "error", Code: appErr.Code.String(), Message: appErr.Message})
}

func (cc *clientConn) write(v interface{}) {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	_ = cc.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cc.ws.WriteJSON(v); err != nil {
		cc.logger.Debug("websocket write failed", zap.String("owner_id", cc.owner), zap.Error(err))
	}
}
