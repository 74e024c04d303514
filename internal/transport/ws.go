package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/models"
)

// Socket event types
const (
	EventMessage  = "chat:message"
	EventResponse = "chat:response"
	EventError    = "chat:error"
	EventTyping   = "chat:typing"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 50 * time.Second
	wsMaxMessage   = 16 * 1024
	wsSendBuffer   = 16
)

// SocketEvent is the envelope for every frame in both directions
type SocketEvent struct {
	Type      string                `json:"type"`
	SessionID string                `json:"sessionId,omitempty"`
	Message   string                `json:"message,omitempty"`
	Response  *models.ChatResponse  `json:"data,omitempty"`
	Error     *models.ErrorResponse `json:"error,omitempty"`
}

// WSServer runs chat turns over a websocket
type WSServer struct {
	chat        ChatService
	logger      *zap.Logger
	turnTimeout time.Duration
	upgrader    websocket.Upgrader
	active      atomic.Int64
}

func NewWSServer(chat ChatService, turnTimeout time.Duration, logger *zap.Logger) *WSServer {
	return &WSServer{
		chat:        chat,
		logger:      logger,
		turnTimeout: turnTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The storefront widget is served from the shop domain
				return true
			},
		},
	}
}

// Register mounts GET /ws on e
func (s *WSServer) Register(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// Active is the number of open sockets
func (s *WSServer) Active() int64 { return s.active.Load() }

type wsConn struct {
	id      string
	conn    *websocket.Conn
	send    chan SocketEvent
	visitor models.VisitorInfo
	once    sync.Once
	done    chan struct{}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// queue hands ev to the writer unless the socket is gone
func (c *wsConn) queue(ev SocketEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	}
}

// HandleWebSocket upgrades the request and serves the socket until it closes
func (s *WSServer) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := &wsConn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan SocketEvent, wsSendBuffer),
		visitor: models.VisitorInfo{
			IPAddress: c.RealIP(),
			UserAgent: c.Request().UserAgent(),
		},
		done: make(chan struct{}),
	}
	ws.SetReadLimit(wsMaxMessage)

	s.active.Add(1)
	s.logger.Info("🔌 socket connected", zap.String("conn_id", conn.id), zap.Int64("active", s.active.Load()))

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *WSServer) readPump(conn *wsConn) {
	defer func() {
		conn.close()
		s.active.Add(-1)
		s.logger.Info("socket disconnected", zap.String("conn_id", conn.id))
	}()

	conn.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.String("conn_id", conn.id), zap.Error(err))
			}
			return
		}

		s.handleFrame(conn, data)
		conn.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

func (s *WSServer) writePump(conn *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		conn.close()
	}()

	for {
		select {
		case ev := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.conn.WriteJSON(ev); err != nil {
				s.logger.Warn("failed to write frame", zap.String("conn_id", conn.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.done:
			return
		}
	}
}

func (s *WSServer) handleFrame(conn *wsConn, data []byte) {
	var ev SocketEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		conn.queue(errorEvent("", models.ErrorResponse{Error: "invalid JSON message", Code: models.ErrorInvalidRequest}))
		return
	}

	switch ev.Type {
	case EventMessage:
		s.handleMessage(conn, ev)
	case EventTyping:
		// client typing indicators need no reply
	default:
		conn.queue(errorEvent(ev.SessionID, models.ErrorResponse{Error: "unknown event type: " + ev.Type, Code: models.ErrorInvalidRequest}))
	}
}

func (s *WSServer) handleMessage(conn *wsConn, ev SocketEvent) {
	conn.queue(SocketEvent{Type: EventTyping, SessionID: ev.SessionID})

	ctx, cancel := context.WithTimeout(context.Background(), s.turnTimeout)
	defer cancel()

	resp, err := s.chat.ProcessMessage(ctx, ev.SessionID, ev.Message, conn.visitor)
	if err != nil {
		if !isValidation(err) {
			s.logger.Error("socket turn failed", zap.String("conn_id", conn.id), zap.Error(err))
		}
		conn.queue(errorEvent(ev.SessionID, errorResponse(err, ev.SessionID)))
		return
	}
	conn.queue(SocketEvent{Type: EventResponse, SessionID: ev.SessionID, Response: resp})
}

func errorEvent(sessionID string, body models.ErrorResponse) SocketEvent {
	return SocketEvent{Type: EventError, SessionID: sessionID, Error: &body}
}
