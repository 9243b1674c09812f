package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailtracker/internal/auth"
)

type SessionHandler struct {
	sessions *auth.Service
	logger   *zap.Logger
}

func NewSessionHandler(sessions *auth.Service, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// OpenSession handles POST /api/sessions
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req struct {
		ClientKey string `json:"clientKey"`
	}
	// 空 body 等同于空 key
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	session, err := h.sessions.OpenSession(req.ClientKey)
	if errors.Is(err, auth.ErrInvalidClientKey) {
		h.logger.Warn("OpenSession: invalid client key", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("OpenSession: failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open session"})
		return
	}

	h.logger.Info("Session opened",
		zap.String("session_id", session.SessionID),
		zap.String("role", session.Role),
	)
	c.JSON(http.StatusCreated, session)
}
