package http

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"literature-manager/internal/bootstrap"
	"literature-manager/internal/metrics"
	"literature-manager/internal/transport/http/handler"
	"literature-manager/internal/transport/http/middleware"
	"literature-manager/internal/transport/http/response"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())
	router.MaxMultipartMemory = 32 << 20

	healthHandler := handler.NewHealthHandler(app)
	paperHandler := handler.NewPaperHandler(app.Ingest, app.Library)
	syncHandler := handler.NewSyncHandler(app.Sync)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.Static("/uploads/pdfs", app.PDFs.Dir())
	router.Static("/uploads/thumbnails", app.Thumbnails.Dir())

	api := router.Group("/api")
	api.GET("/papers", paperHandler.List)
	api.POST("/upload", paperHandler.Upload)
	api.POST("/batch-upload", paperHandler.BatchUpload)
	api.PUT("/papers/:id", paperHandler.Update)
	api.DELETE("/papers/:id", paperHandler.Delete)
	api.GET("/search", paperHandler.Search)
	api.GET("/stats", paperHandler.Stats)
	api.GET("/activity", paperHandler.Activity)

	syncGroup := api.Group("/sync")
	syncGroup.POST("/papers/:id", syncHandler.SyncPaper)
	syncGroup.POST("/all", syncHandler.SyncAll)
	syncGroup.GET("/status", syncHandler.Status)

	static := staticHandler(app.Config.Storage.StaticDir)
	router.NoRoute(func(c *gin.Context) {
		if static == nil || c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "route not found")
			return
		}
		static.ServeHTTP(c.Writer, c.Request)
	})

	return router
}

// staticHandler serves the browser frontend when its directory exists.
func staticHandler(dir string) http.Handler {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	return http.FileServer(http.Dir(dir))
}
