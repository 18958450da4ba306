// Package api exposes the daemon's HTTP control surface.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/granobox/spool/internal/api/handlers"
	"github.com/granobox/spool/internal/api/middleware"
	"github.com/granobox/spool/internal/logging"
)

type RouterOptions struct {
	Jobs      handlers.QueueStore
	Presets   handlers.PresetStore
	Discovery handlers.Discoverer
	Notifier  handlers.Notifier
	WebSocket http.Handler
	Auth      *middleware.AuthMiddleware
	Logger    *zap.Logger
}

func NewRouter(opts RouterOptions) *gin.Engine {
	logger := logging.OrNop(opts.Logger).With(zap.String("component", "api"))
	auth := opts.Auth
	if auth == nil {
		auth = middleware.NewAuthMiddleware("", "")
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	jobs := handlers.NewJobHandler(opts.Jobs, opts.Notifier, logger)
	printers := handlers.NewPrinterHandler(opts.Discovery, opts.Presets, opts.Jobs, opts.Notifier, logger)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", auth.RequireAuth(), gin.WrapH(opts.WebSocket))

	api := r.Group("/api")
	api.GET("/status", jobs.Status)
	api.POST("/auth/token", auth.TokenHandler)

	protected := api.Group("", auth.RequireAuth())

	queue := protected.Group("/print/queue")
	queue.POST("", jobs.Enqueue)
	queue.GET("/status", jobs.QueueStatus)
	queue.GET("/items", jobs.ListItems)
	queue.DELETE("/clear", jobs.ClearQueue)

	bluetooth := protected.Group("/bluetooth")
	bluetooth.GET("/scan", printers.ScanDevices)
	bluetooth.GET("/paired", printers.PairedDevices)

	configs := protected.Group("/printers/configs")
	configs.GET("", printers.ListConfigs)
	configs.POST("", printers.CreateConfig)
	configs.POST("/:id/activate", printers.ActivateConfig)
	configs.POST("/:id/test", printers.TestConfig)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Success: false, Error: "Not found"})
	})

	return r
}
