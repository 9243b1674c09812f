package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"emailtracker/internal/messaging"
	"emailtracker/pkg/logger"
)

// MessageHandler exposes the page messaging contract over HTTP and websocket.
type MessageHandler struct {
	dispatcher     *messaging.Dispatcher
	originPatterns []string
	logger         *zap.Logger
}

func NewMessageHandler(dispatcher *messaging.Dispatcher, originPatterns []string, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{dispatcher: dispatcher, originPatterns: originPatterns, logger: logger}
}

// Send handles POST /api/messages
func (h *MessageHandler) Send(c *gin.Context) {
	var req messaging.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messaging.Fail("invalid request"))
		return
	}
	c.JSON(http.StatusOK, h.dispatcher.Dispatch(c.Request.Context(), req))
}

// Stream handles GET /api/ws. Each text frame is one request; replies echo its id.
func (h *MessageHandler) Stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept 已经写回了错误响应
		h.logger.Warn("Stream: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)
	sessionID := c.GetString("session_id")
	log.Info("Websocket connected", zap.String("session_id", sessionID))

	for {
		var req messaging.Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("Websocket closed", zap.String("session_id", sessionID))
			default:
				if ctx.Err() == nil {
					log.Warn("Websocket read failed", zap.String("session_id", sessionID), zap.Error(err))
				}
			}
			return
		}

		resp := h.dispatcher.Dispatch(ctx, req)
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			log.Warn("Websocket write failed", zap.String("type", string(req.Type)), zap.Error(err))
			return
		}
	}
}
