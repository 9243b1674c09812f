package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailtracker/internal/model"
	"emailtracker/pkg/logger"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, l *zap.Logger, op string, err error) {
	status := statusFor(err)
	log := logger.WithTrace(c.Request.Context(), l)
	if status >= http.StatusInternalServerError {
		log.Error(op+": failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	log.Warn(op+": rejected", zap.Int("status", status), zap.Error(err))
	body := gin.H{"error": err.Error()}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body["errors"] = ve.Errors
	}
	c.JSON(status, body)
}
