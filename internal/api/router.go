package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"alertsync/internal/config"
	"alertsync/internal/metrics"
	"alertsync/internal/reconciler"
	"alertsync/internal/store"
)

// NewRouter builds the serve-mode HTTP surface: the Zabbix webhook ingest
// endpoint, read-only mapping inspection, health, and metrics.
func NewRouter(st store.MappingStore, rec *reconciler.Reconciler, m *metrics.Metrics, logger *logrus.Logger, cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := &Handler{store: st, reconciler: rec, metrics: m, logger: logger}

	api := r.Group(cfg.API.BasePath)
	{
		api.POST("/webhook/zabbix", h.ZabbixWebhook)
		api.GET("/mappings", h.GetMappings)
		api.GET("/mappings/:alert_id", h.GetMapping)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}
