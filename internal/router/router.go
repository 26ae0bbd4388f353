package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiodesk/ffetrack/config"
	"github.com/studiodesk/ffetrack/internal/handler"
)

// Handlers 路由需要的全部 Handler
type Handlers struct {
	Templates  *handler.TemplateHandler
	Rooms      *handler.RoomHandler
	Instances  *handler.InstanceHandler
	Items      *handler.ItemHandler
	ChangeLogs *handler.ChangeLogHandler
}

func Setup(cfg *config.Config, gatherer prometheus.Gatherer, h Handlers) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Actor", "X-Org-ID", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(handler.ActorMiddleware(cfg.FFE.DefaultOrganizationID))
	{
		h.Templates.RegisterRoutes(api)
		h.Rooms.RegisterRoutes(api)
		h.Instances.RegisterRoutes(api)
		h.Items.RegisterRoutes(api)
		h.ChangeLogs.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
