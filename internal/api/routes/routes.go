package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yoockh/callrelay/internal/api/handlers"
	"github.com/yoockh/callrelay/internal/api/middleware"
)

type Deps struct {
	System *handlers.SystemHandler
	Media  *handlers.MediaHandler
	Calls  *handlers.CallHandler

	JWT      middleware.JWTOptions
	Gatherer prometheus.Gatherer // nil serves the default registry
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/", d.System.Root)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/system-message", d.System.GetSystemMessage)
	r.GET("/test-webhook", d.System.TestWebhook)
	r.Any("/incoming-call", d.System.IncomingCall)

	calls := r.Group("/calls")
	calls.Use(middleware.JWTAuth(d.JWT), middleware.RequireAdmin())
	calls.GET("", d.Calls.Recent)
	calls.GET("/:session_id", d.Calls.Get)
	calls.GET("/:session_id/summary", d.Calls.Summary)

	// Provider stream
	r.GET("/media-stream", d.Media.MediaStream)

	admin := r.Group("/")
	admin.Use(middleware.JWTAuth(d.JWT), middleware.RequireAdmin())
	admin.POST("/system-message", d.System.SetSystemMessage)

	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
