package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/minidns/internal/api/handlers"
	"github.com/jroosing/minidns/internal/api/middleware"
	"github.com/jroosing/minidns/internal/config"
)

// RegisterRoutes mounts the zone namespace on every method. The whole path
// space belongs to zones, so there are no other routes; methods the resource
// tree does not know are answered with 405 there.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	root := r.Group("/")

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		root.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	root.Any("/*path", h.Resource)
}
