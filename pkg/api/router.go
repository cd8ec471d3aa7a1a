package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/optsched/pkg/api/handler"
	"github.com/LENAX/optsched/pkg/api/middleware"
	"github.com/LENAX/optsched/pkg/core/engine"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	solveHandler := handler.NewSolveHandler(eng)
	runHandler := handler.NewRunHandler(eng)
	jobHandler := handler.NewJobHandler(eng)
	eventHandler := handler.NewEventHandler(eng.EventBus())
	healthHandler := handler.NewHealthHandler(eng, version)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		v1.POST("/solve", solveHandler.Solve)
		v1.GET("/events", eventHandler.Stream)

		// 运行记录路由
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.GET("/active", runHandler.Active)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/schedule", runHandler.Schedule)
			runs.DELETE("/:id", runHandler.Delete)
			runs.POST("/:id/cancel", runHandler.Cancel)
		}

		// 定时任务路由
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.List)
			jobs.POST("/:name/run", jobHandler.Run)
		}
	}

	return router
}
