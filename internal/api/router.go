package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/config"
)

func NewRouter(h *Handler, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(h.logger))
	r.Use(cors.New(corsConfig(cfg.API.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	basePath := cfg.API.BasePath
	if basePath == "" {
		basePath = "/api/v0"
	}
	api := r.Group(basePath)
	{
		// Unread aggregate
		api.GET("/unread", h.GetUnread)
		api.GET("/unread/:channel_id", h.GetUnreadForChannel)

		// Alerts
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.POST("/alerts/:id/read", h.MarkRead)
		api.POST("/alerts/:id/unread", h.MarkUnread)

		// Channels
		api.GET("/channels", h.ListChannels)
		api.POST("/channels/:id/read", h.MarkChannelRead)
		api.DELETE("/channels/:id", h.DeleteChannel)

		// Session and settings
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)
		api.POST("/session/login", h.Login)
		api.POST("/session/logout", h.Logout)

		// Reminder engine
		api.GET("/reminder", h.GetReminderStatus)
		api.GET("/ws", h.WebSocket)

		// Push intake
		api.POST("/push", h.Push)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
