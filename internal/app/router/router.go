// Package router wires the HTTP routes for the tradinghub server.
package router

import (
	"github.com/gin-gonic/gin"

	marketdatahandler "tradinghub/internal/feature/marketdata/transport/handler"
	symbollisthandler "tradinghub/internal/feature/symbollist/transport/handler"
)

// NewRouter mounts all API routes on a gin engine.
func NewRouter(marketData *marketdatahandler.MarketDataHandler,
	symbols *symbollisthandler.SymbolHandler) *gin.Engine {
	r := gin.Default()

	// 導通確認用
	r.GET("/healthz", Health)

	r.GET("/symbols", symbols.List)
	r.POST("/symbols", symbols.Register)

	api := r.Group("/api")
	{
		api.GET("/market-data/test-connection", marketData.TestConnection)
		api.GET("/market-data/:symbol", marketData.GetMarketData)
		api.GET("/market-data/:symbol/status", marketData.GetStatus)
		api.POST("/market-data/:symbol/refresh", marketData.Refresh)
		api.GET("/option-data/:symbol", marketData.GetOptionData)
	}

	return r
}

// Health answers liveness probes.
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case "HEAD":
		c.Status(200)
	case "OPTIONS":
		c.Status(204)
	default:
		c.JSON(200, gin.H{"status": "ok"})
	}
}
