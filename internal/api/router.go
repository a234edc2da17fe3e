package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quantlab/pulse/internal/hub"
)

// NewRouter assembles the HTTP surface: the query API plus the websocket
// broadcast endpoint.
func NewRouter(h *Handler, ws *hub.Hub) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/symbols", h.Symbols)
		api.GET("/price/:symbol", h.Price)
		api.GET("/analytics/:symbol", h.Analytics)
		api.GET("/correlation", h.Correlation)
		api.GET("/stats-timeseries/:symbol", h.StatsTimeseries)
		api.GET("/backtest-signals/:symbol", h.BacktestSignals)
		api.GET("/export/:symbol", h.Export)

		api.POST("/alerts", h.CreateAlert)
		api.GET("/alerts/:symbol", h.ListAlerts)
		api.DELETE("/alerts/:id", h.DeleteAlert)
		api.GET("/alert-triggers/:symbol", h.ListTriggers)
	}

	router.GET("/ws/data", func(c *gin.Context) {
		ws.Handler(c.Writer, c.Request)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
