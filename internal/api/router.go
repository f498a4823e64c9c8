package api

import (
	"log/slog"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/manpreetbhatti/menuroom/internal/ws"
)

// Router builds the HTTP surface: REST routes under /api, the health probe
// and the websocket upgrade on /ws.
func (a *API) Router(allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(a.log))
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", a.HealthHandler)
	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(a.hub, a.rooms, c.Writer, c.Request)
	})

	api := router.Group("/api")
	api.GET("/stats", a.StatsHandler)

	api.GET("/rooms", a.ListRoomsHandler)
	api.POST("/rooms", a.CreateRoomHandler)
	api.GET("/rooms/:id", a.GetRoomHandler)
	api.GET("/rooms/:id/enquiry", a.EnquiryHandler)
	api.GET("/rooms/:id/versions", a.ListVersionsHandler)
	api.POST("/rooms/:id/versions", a.CreateVersionHandler)

	api.GET("/vendors/:id/catalog", a.VendorCatalogHandler)

	api.GET("/versions/diff", a.DiffVersionsHandler)
	api.GET("/versions/:id", a.GetVersionHandler)
	api.DELETE("/versions/:id", a.DeleteVersionHandler)
	api.POST("/versions/:id/restore", a.RestoreVersionHandler)

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	return config
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
