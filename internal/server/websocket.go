package server

import (
	"net/http"
	"time"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/auth"
	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/frame"
	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/hub"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

type WebSocketServer struct {
	logger        *zap.Logger
	upgrader      *websocket.Upgrader
	authenticator *auth.Authenticator
	registry      hub.Registry

	sendBuffer int
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	authenticator *auth.Authenticator,
	registry hub.Registry,
	sendBuffer int,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		authenticator,
		registry,
		sendBuffer,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/ws", s.handle)
}

// handle upgrades the request and authenticates the bearer token carried in
// the handshake URI before anything else happens on the socket: no inbound
// data is read and no registry entry exists until the token checks out.
func (s *WebSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))

		return
	}

	conn.SetReadLimit(1024)

	token := r.URL.Query().Get("token")

	authentication, err := s.authenticator.AuthenticateToken(token)
	if err != nil {
		s.logger.Warn("rejecting websocket connection",
			zap.String("remoteAddr", r.RemoteAddr),
			zap.Error(err))

		s.reject(conn, "invalid or missing authentication token")

		return
	}

	connection := hub.NewConnection(authentication.Subject, s.sendBuffer)
	s.registry.Register(connection)

	s.logger.Info("websocket connection established",
		zap.String("identity", connection.Identity()),
		zap.String("connectionId", connection.Id()))

	connection.Enqueue(frame.NewConnection("connected to notification service"))

	go s.writePump(conn, connection)
	s.readPump(conn, connection)
}

func (s *WebSocketServer) reject(conn *websocket.Conn, reason string) {
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)

	if err := conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeTimeout)); err != nil {
		s.logger.Debug("failed to write close message", zap.Error(err))
	}

	conn.Close()
}

// readPump discards inbound payloads: push delivery is one-way, so reading
// only serves to detect peer closure and enforce the read limit. Returning
// settles the connection through the registry's guarded Unregister.
func (s *WebSocketServer) readPump(conn *websocket.Conn, connection *hub.Connection) {
	defer func() {
		s.registry.Unregister(connection)
		conn.Close()

		s.logger.Info("websocket connection closed",
			zap.String("identity", connection.Identity()),
			zap.String("connectionId", connection.Id()))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocketServer) writePump(conn *websocket.Conn, connection *hub.Connection) {
	for f := range connection.Frames() {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))

		if err := conn.WriteJSON(f); err != nil {
			s.logger.Warn("failed to write frame",
				zap.String("identity", connection.Identity()),
				zap.String("connectionId", connection.Id()),
				zap.Error(err))

			conn.Close()

			return
		}
	}

	// Frames channel closed: the registry settled this connection.
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeTimeout))
	conn.Close()
}
