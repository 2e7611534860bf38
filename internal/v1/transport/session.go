package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playroom/server/internal/v1/auth"
	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/lobby"
	"github.com/playroom/server/internal/v1/logging"
	"github.com/playroom/server/internal/v1/metrics"
	"github.com/playroom/server/internal/v1/protocol"
	"github.com/playroom/server/internal/v1/room"
	"github.com/playroom/server/internal/v1/types"
)

// CommandHandler processes a domain command received on a live session and
// returns the reply to relay back to the sender. The session loop treats
// commands as opaque; handlers own all domain semantics.
type CommandHandler func(ctx context.Context, msg *protocol.ClientMessage, username types.Username, r *room.Room) protocol.ServerMessage

// Session upgrades HTTP requests to WebSocket sessions and runs their read
// loops against the lobby.
type Session struct {
	lobby          *lobby.Lobby
	handler        CommandHandler
	allowedOrigins []string
}

// NewSession creates the WebSocket session endpoint handler.
func NewSession(l *lobby.Lobby, handler CommandHandler, allowedOrigins []string) *Session {
	return &Session{
		lobby:          l,
		handler:        handler,
		allowedOrigins: allowedOrigins,
	}
}

// ServeWs handles GET /ws: extracts the seat token, upgrades the
// connection, authenticates it through the lobby, and runs the session
// loop until the peer goes away.
func (s *Session) ServeWs(c *gin.Context) {
	token, err := extractToken(c)
	if err != nil {
		resp := errs.ToResponse(err)
		c.JSON(resp.Code, resp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, s.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{},
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	conn := NewConn(ws)
	go conn.WritePump()
	metrics.IncConnection()
	defer metrics.DecConnection()

	r, sync, err := s.lobby.ConnectPlayer(token, conn)
	if err != nil {
		// The upgrade already succeeded, so errors travel inside the
		// transport: one error frame, then a close frame.
		conn.SendAndClose(protocol.ErrorMessage(err))
		return
	}

	username := sync.You
	_ = conn.Send(protocol.Sync(sync), "")

	s.readLoop(ws, conn, r, username)

	s.lobby.DisconnectPlayer(r, username, conn)
	conn.Close()
}

// readLoop drains inbound frames until the stream ends. Non-text frames
// are ignored; per-frame failures are answered with error frames and the
// loop continues.
func (s *Session) readLoop(ws wsConn, conn *Conn, r *room.Room, username types.Username) {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			logging.GetLogger().Debug("websocket read ended",
				zap.String("roomCode", string(r.Code)),
				zap.String("username", string(username)), zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleFrame(conn, r, username, data)
	}
}

// handleFrame parses one text frame and relays the handler's reply. The
// ack correlation id is echoed on the reply when the frame carried one and
// parsing got far enough to extract it.
func (s *Session) handleFrame(conn *Conn, r *room.Room, username types.Username, data []byte) {
	ack, err := protocol.ExtractAck(data)
	if err != nil {
		metrics.WebsocketFrames.WithLabelValues("parse_error").Inc()
		_ = conn.Send(protocol.ErrorMessage(err), "")
		return
	}

	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		metrics.WebsocketFrames.WithLabelValues("parse_error").Inc()
		_ = conn.Send(protocol.ErrorMessage(err), ack)
		return
	}

	metrics.WebsocketFrames.WithLabelValues("ok").Inc()

	ctx := context.WithValue(context.Background(), logging.RoomCodeKey, string(r.Code))
	ctx = context.WithValue(ctx, logging.UsernameKey, string(username))

	reply := s.handler(ctx, msg, username, r)
	_ = conn.Send(reply, ack)
}

// extractToken pulls the seat token from the upgrade query, falling back
// to a bearer Authorization header.
func extractToken(c *gin.Context) (string, error) {
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	if header := c.GetHeader("Authorization"); header != "" {
		return auth.ExtractBearer(header)
	}
	return "", errs.InvalidToken(nil)
}

// validateOrigin checks the request origin against the allow-list.
// Non-browser clients without an Origin header are allowed.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return err
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	logging.Warn(r.Context(), "Origin not in allowed list",
		zap.String("origin", origin), zap.Strings("allowedOrigins", allowedOrigins))
	return fmt.Errorf("origin not allowed: %s", origin)
}
