// Package api exposes the search engine over HTTP for local GUI clients.
package api

import (
	"github.com/deepak/photofind/internal/api/handler"
	"github.com/deepak/photofind/internal/api/middleware"
	"github.com/deepak/photofind/internal/engine"
	"github.com/deepak/photofind/internal/faces"
	"github.com/deepak/photofind/internal/logger"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds router setup options.
type RouterConfig struct {
	Mode           string // release, test, or debug
	Version        string
	AllowedOrigins []string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(eng *engine.Engine, faceStore *faces.Store, log *logger.Logger, cfg *RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler := handler.NewHealthHandler(cfg.Version)
	searchHandler := handler.NewSearchHandler(eng)
	facesHandler := handler.NewFacesHandler(faceStore)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/search", searchHandler.Search)

		v1.GET("/photos", searchHandler.ListPhotos)
		v1.GET("/photos/file", searchHandler.PhotoFile)

		v1.GET("/faces", facesHandler.List)
		v1.POST("/faces/rescan", facesHandler.Rescan)
		v1.DELETE("/faces/:name", facesHandler.Remove)

		v1.GET("/stats", searchHandler.Stats)
	}

	return r
}
