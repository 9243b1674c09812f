package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"emailtracker/internal/auth"
	"emailtracker/internal/handler"
	"emailtracker/pkg/otel"
	"emailtracker/pkg/rbac"
)

// Pinger reports whether the primary store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerStatus is satisfied by *mq.Publisher.
type BrokerStatus interface {
	IsConnected() bool
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	sessionHandler *handler.SessionHandler,
	messageHandler *handler.MessageHandler,
	recordHandler *handler.RecordHandler,
	sessions *auth.Service,
	store Pinger,
	broker BrokerStatus,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_not_ready", "error": err.Error()})
			return
		}

		if broker != nil && !broker.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/api/sessions", sessionHandler.OpenSession)

	// Protected
	api := r.Group("/api")
	api.Use(AuthMiddleware(sessions))
	{
		send := RequirePermission(rbac.PermissionSendMessage)
		api.POST("/messages", send, messageHandler.Send)
		api.GET("/ws", send, messageHandler.Stream)

		read := RequirePermission(rbac.PermissionReadRecords)
		api.GET("/records", read, recordHandler.ListRecords)
		api.GET("/records/:domain", read, recordHandler.GetRecord)
		api.POST("/records/:domain/used", read, recordHandler.MarkUsed)
		api.GET("/stats", read, recordHandler.Stats)
		api.GET("/export", read, recordHandler.Export)

		write := RequirePermission(rbac.PermissionWriteRecords)
		api.PUT("/records/:domain", write, recordHandler.SaveRecord)
		api.PATCH("/records/:domain", write, recordHandler.UpdateRecord)
		api.DELETE("/records/:domain", write, recordHandler.DeleteRecord)

		manage := RequirePermission(rbac.PermissionManageRecords)
		api.DELETE("/records", manage, recordHandler.ClearRecords)
		api.POST("/import", manage, recordHandler.Import)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
