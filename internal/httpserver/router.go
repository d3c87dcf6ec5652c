package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"briefd/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	briefHandler *handler.BriefHandler,
	inboundHandler *handler.InboundHandler,
	readHandler *handler.ReadHandler,
) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Inbound email webhook (delivery collaborator)
	r.POST("/inbound/email", inboundHandler.ReceiveEmail)

	// Brief management
	r.POST("/briefs", briefHandler.Create)
	r.GET("/briefs/:id", briefHandler.Get)
	r.POST("/briefs/:id/execute", briefHandler.ExecuteNow)
	r.POST("/briefs/:id/sources", briefHandler.AddSource)
	r.GET("/briefs/:id/sources", briefHandler.ListSources)
	r.GET("/briefs/:id/reports", briefHandler.ListReports)

	// Reads
	r.GET("/sources/:id/items", readHandler.ListSourceItems)
	r.GET("/reports/:id", readHandler.GetReport)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
