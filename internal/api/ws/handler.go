// Package ws carries the terminal operations over a WebSocket connection:
// JSON messages multiplex create/execute/close so a host can drive many
// sessions over one long-lived connection.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/edgeterm/edgeterm/internal/infrastructure/logging"
	"github.com/edgeterm/edgeterm/internal/infrastructure/monitoring"
	"github.com/edgeterm/edgeterm/internal/terminal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS layer
	},
}

// Message is a client request frame.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Command   string `json:"command,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// Handler manages WebSocket connections.
type Handler struct {
	manager *terminal.Manager
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler.
func NewHandler(manager *terminal.Manager, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		manager: manager,
		log:     log,
		metrics: metrics,
	}
}

// HandleConnection handles WebSocket upgrade and messages. Each execute
// blocks this connection's read loop for up to its timeout; clients
// needing parallel commands across sessions open parallel connections.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	if h.metrics != nil {
		h.metrics.WSConnected()
		defer h.metrics.WSDisconnected()
	}
	h.log.Info("WebSocket connected", zap.String("conn_id", connID))

	h.send(conn, gin.H{
		"type":    "system",
		"message": "connected to edgeterm",
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read error", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "create":
			h.handleCreate(conn, msg)
		case "execute":
			h.handleExecute(conn, msg)
		case "close":
			h.handleClose(conn, msg)
		case "ping":
			h.send(conn, gin.H{"type": "pong"})
		default:
			h.sendError(conn, msg.SessionID, "unknown message type: "+msg.Type)
		}
	}
}

func (h *Handler) handleCreate(conn *websocket.Conn, msg Message) {
	sessionID, err := h.manager.CreateSession(msg.SessionID)
	if err != nil {
		h.sendError(conn, msg.SessionID, err.Error())
		return
	}
	h.send(conn, gin.H{
		"type":       "created",
		"session_id": sessionID,
	})
}

func (h *Handler) handleExecute(conn *websocket.Conn, msg Message) {
	timeout := time.Duration(msg.TimeoutMS) * time.Millisecond
	result, err := h.manager.ExecuteCommand(msg.SessionID, msg.Command, timeout)
	if err != nil {
		h.sendError(conn, msg.SessionID, err.Error())
		return
	}
	h.send(conn, gin.H{
		"type":   "result",
		"result": result,
	})
}

func (h *Handler) handleClose(conn *websocket.Conn, msg Message) {
	closed := h.manager.CloseSession(msg.SessionID)
	h.send(conn, gin.H{
		"type":       "closed",
		"session_id": msg.SessionID,
		"success":    closed,
	})
}

func (h *Handler) send(conn *websocket.Conn, payload gin.H) {
	if err := conn.WriteJSON(payload); err != nil {
		h.log.Warn("WebSocket write failed", zap.Error(err))
	}
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, gin.H{
		"type":       "error",
		"session_id": sessionID,
		"error":      message,
	})
}
