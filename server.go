package main

import (
	"github.com/codingric/moneyman/config"
	"github.com/codingric/moneyman/controllers"
	"github.com/codingric/moneyman/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func setupServer(ctl *controllers.Controller, cfg *config.Config) *gin.Engine {
	if cfg.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.Logger())

	// Routes
	r.GET("/", ctl.Home)
	r.POST("/predict", ctl.Predict)
	r.POST("/classify", ctl.Classify)
	if cfg.Transactions.Enabled {
		r.GET("/transactions", ctl.FindTransactions)
	}
	r.GET("/healthz/ready", ctl.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
