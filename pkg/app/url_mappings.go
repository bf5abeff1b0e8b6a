package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/archops/governor/internal/controllers"
	"github.com/archops/governor/internal/middleware"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController(app.Redis).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/governor")
	authed := v1.Group("", middleware.AuthMiddleware(app.Validator, app.Config))
	{
		authed.POST("/validations", middleware.RateLimitSubmit(app.RateLimiter, app.Config), controllers.NewSubmitValidationController(app.Orchestrator).Handle)
		authed.GET("/validations/:id/status", controllers.NewValidationStatusController(app.Orchestrator).Handle)
		authed.GET("/validations/:id/results", controllers.NewValidationResultsController(app.Orchestrator).Handle)

		authed.GET("/agents", controllers.NewListAgentsController(app.Registry).Handle)
		authed.GET("/agents/:id", controllers.NewGetAgentController(app.Registry).Handle)

		authed.GET("/swarm/status", controllers.NewSwarmStatusController(app.Registry, app.Orchestrator, app.LLMProvider, app.LLMHealth).Handle)
		authed.POST("/documents", controllers.NewUploadDocumentController(app.Ingest).Handle)

		// Agent management mutates the fleet; only admins may call it. With
		// auth disabled (dev) the gate is a no-op.
		admin := authed.Group("")
		if app.Validator != nil {
			admin.Use(middleware.RequireAdmin())
		}
		admin.POST("/agents", controllers.NewRegisterAgentController(app.Registry).Handle)
		admin.POST("/agents/:id/start", controllers.NewStartAgentController(app.Registry).Handle)
		admin.POST("/agents/:id/stop", controllers.NewStopAgentController(app.Registry).Handle)
		admin.POST("/agents/:id/restart", controllers.NewRestartAgentController(app.Registry).Handle)
	}
}
