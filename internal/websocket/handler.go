// Package websocket serves the relay endpoint: it upgrades the request,
// registers the connection with the hub and pumps queued messages out.
package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Handler upgrades requests to relay connections.
type Handler struct {
	hub        *hub.Hub
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	sendBuffer int
}

// NewHandler creates a relay endpoint handler backed by h.
func NewHandler(h *hub.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Display clients are served from other hosts on the LAN.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sendBuffer: hub.DefaultSendBuffer,
	}
}

// ServeHTTP handles WebSocket connection requests
func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	client := hub.NewClient(s.sendBuffer)
	if !s.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
		conn.Close()
		return
	}
	s.logger.Info("WebSocket client connected",
		zap.String("client", client.ID),
		zap.String("remote", r.RemoteAddr))

	go s.writePump(conn, client)
	go s.readPump(conn, client)
}

// readPump only watches for close and pong; clients never send requests.
func (s *Handler) readPump(conn *websocket.Conn, client *hub.Client) {
	defer func() {
		s.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket error", zap.String("client", client.ID), zap.Error(err))
			}
			break
		}
		s.logger.Debug("Ignoring client message",
			zap.String("client", client.ID),
			zap.Int("type", messageType),
			zap.Int("size", len(message)))
	}
	s.logger.Info("WebSocket client disconnected", zap.String("client", client.ID))
}

// writePump is the only writer on conn.
func (s *Handler) writePump(conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			messageType := websocket.TextMessage
			if msg.Binary {
				messageType = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(messageType, msg.Data); err != nil {
				// Best effort: the read pump unregisters the client.
				client.MarkClosing()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.MarkClosing()
				return
			}
		}
	}
}
