package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/registry"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/toolcache"
)

// NewRouter builds the gin.Engine exposing spec.md §6.3's route table.
// The embedding host may run it standalone or mount its route group into
// a larger mux; this package owns no listener lifecycle.
func NewRouter(reg *registry.Registry, store *settings.Store, cache *toolcache.Coordinator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(loggingMiddleware(), gin.Recovery())

	h := NewHandlers(reg, store, cache)

	servers := engine.Group("/servers")
	servers.GET("", h.ListServers)
	servers.POST("", h.CreateServer)
	servers.DELETE("/:name", h.DeleteServer)
	servers.POST("/disabled", h.SetDisabledServers)
	servers.POST("/:name/start", h.StartServer)
	servers.POST("/:name/stop", h.StopServer)
	servers.GET("/:name/list-tools", h.ListTools)
	servers.POST("/:name/disabled-tools", h.SetDisabledTools)
	servers.POST("/:name/reload-tools", h.ReloadTools)
	servers.POST("/:name/call-tool", h.CallTool)

	return engine
}

func loggingMiddleware() gin.HandlerFunc {
	log := logging.GetDefault().With("component", "api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
