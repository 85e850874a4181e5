package cmd

import (
	"github.com/kit-data-manager/staging/pkg/config"
	"github.com/kit-data-manager/staging/pkg/staging"
	"github.com/kit-data-manager/staging/pkg/staging/webapi"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type RouteDependencies struct {
	e       *echo.Echo
	config  config.Configer
	service *staging.Service
}

func setupRoutes(deps RouteDependencies) {
	deps.e.Use(middleware.Recover())
	g := deps.e.Group("/api")

	logController := webapi.NewLogController()
	g.POST("/set-logging-level", logController.SetLogLevelHandler)
	g.POST("/set-logging-output", logController.SetLogOutputHandler)
	g.POST("/set-logging", logController.SetLoggingHandler)
	g.GET("/show-logging", logController.ShowCurrentLoggingHandler)

	transfersController := webapi.NewTransfersController(deps.service)
	g.POST("/downloads", transfersController.ScheduleDownloadHandler)
	g.POST("/ingests", transfersController.PrepareIngestHandler)
	g.GET("/transfers", transfersController.IndexTransfersHandler)
	g.GET("/transfers/count", transfersController.CountTransfersHandler)
	g.GET("/transfers/:id", transfersController.GetTransferHandler)
	g.PUT("/transfers/:id/status", transfersController.UpdateStatusHandler)
	g.PUT("/transfers/:id/urls", transfersController.UpdateURLHandler)
	g.DELETE("/transfers/:id", transfersController.RemoveTransferHandler)
	g.POST("/cleanup", transfersController.CleanupHandler)

	g.POST("/trees", transfersController.RegisterTreeHandler)
	g.GET("/trees/:object", transfersController.GetTreeHandler)
	g.GET("/trees/:object/aggregates", transfersController.GetTreeAggregatesHandler)
}
