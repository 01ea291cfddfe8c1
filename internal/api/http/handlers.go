// Package http exposes the terminal session manager over HTTP. It is host
// glue: every handler goes through the manager's boundary contract and
// knows nothing about PTYs.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edgeterm/edgeterm/internal/infrastructure/logging"
	"github.com/edgeterm/edgeterm/internal/terminal"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	manager *terminal.Manager
	log     *logging.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(manager *terminal.Manager, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		manager: manager,
		log:     log,
	}
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

type executeRequest struct {
	Command   string `json:"command" binding:"required"`
	TimeoutMS int    `json:"timeout_ms"`
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "edgeterm",
		"version": "0.1.0",
	})
}

// Health reports daemon health and session counts.
func (h *Handlers) Health(c *gin.Context) {
	sessions := h.manager.ListSessions()
	active := 0
	for _, s := range sessions {
		if s.State == terminal.StateActive {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"sessions": gin.H{
			"total":  len(sessions),
			"active": active,
		},
	})
}

// CreateSession spawns a new terminal session. The identifier is optional;
// supplying one that is already in use replaces the existing session.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	// The body is optional; an empty one means "generate an identifier".
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	sessionID, err := h.manager.CreateSession(req.SessionID)
	if err != nil {
		h.log.Warn("Session creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"session_id": sessionID,
	})
}

// ListSessions lists all registered sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.manager.ListSessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns a single session snapshot.
func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.manager.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// ExecuteCommand runs one command in a session and returns its captured
// output. The handler blocks for up to the requested timeout.
func (h *Handlers) ExecuteCommand(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	result, err := h.manager.ExecuteCommand(c.Param("id"), req.Command, timeout)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// CloseSession terminates a session. Closing an unknown identifier is a
// no-op reported as success=false.
func (h *Handlers) CloseSession(c *gin.Context) {
	closed := h.manager.CloseSession(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"success":    closed,
		"session_id": c.Param("id"),
	})
}

// statusForError maps the manager's failure taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, terminal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, terminal.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, terminal.ErrWrite), errors.Is(err, terminal.ErrRead):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
