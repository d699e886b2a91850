package router

import (
	"leasehub/internal/handlers"
	"leasehub/internal/middleware"
	"leasehub/internal/services"
	"leasehub/pkg/config"
	"leasehub/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Dependencies 路由需要的已装配服务
type Dependencies struct {
	Config       *config.Config
	JWTManager   *jwt.JWTManager
	LeaseService *services.LeaseService
	Sweeper      *services.ExpirySweeper
	EventHub     *services.EventHub
	Checkers     map[string]handlers.HealthChecker
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(middleware.ErrorHandler())
	if deps.Config != nil {
		router.Use(middleware.SetupCORS(deps.Config.CORS))
	}

	registerRoutes(router, deps)
	return router
}

func registerRoutes(router *gin.Engine, deps Dependencies) {
	auth := middleware.NewAuthMiddleware(deps.JWTManager)

	systemHandler := handlers.NewSystemHandler(deps.Sweeper, deps.EventHub, deps.Checkers)
	leaseHandler := handlers.NewLeaseHandler(deps.LeaseService, deps.Sweeper)

	var allowedOrigins []string
	if deps.Config != nil {
		allowedOrigins = deps.Config.CORS.AllowOrigins
	}
	streamHandler := handlers.NewEventStreamHandler(deps.EventHub, deps.JWTManager, allowedOrigins)

	api := router.Group("/api/v1")
	{
		api.GET("/health", systemHandler.Health)
		api.GET("/ping", systemHandler.Ping)

		// WebSocket 自行校验查询参数中的 token
		api.GET("/leases/events/ws", streamHandler.Stream)

		leases := api.Group("/leases", auth.RequireLogin())
		{
			leases.POST("", leaseHandler.Create)
			leases.GET("", leaseHandler.GetAll)
			leases.GET("/:id", leaseHandler.GetByID)
			leases.PUT("/:id", leaseHandler.Update)
			leases.DELETE("/:id", leaseHandler.Cancel)
			leases.POST("/:id/cancel", leaseHandler.Cancel)

			leases.POST("/sweep", auth.RequireAdmin(), leaseHandler.Sweep)
		}

		system := api.Group("/system", auth.RequireLogin(), auth.RequireAdmin())
		{
			system.GET("/scheduler", systemHandler.GetSchedulerStatus)
		}
	}
}
