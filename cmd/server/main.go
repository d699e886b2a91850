package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leasehub/internal/bootstrap"
	"leasehub/internal/database"
	"leasehub/internal/handlers"
	"leasehub/internal/router"
	"leasehub/pkg/config"
	"leasehub/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting Lease Hub...")

	// 初始化数据库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
		if err := database.CloseRedis(); err != nil {
			appLogger.Error("Failed to close Redis:", err)
		}
	}()

	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	if err := seedData(database.GetDB()); err != nil {
		appLogger.Fatalf("Failed to initialize seed data: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)

	app, err := bootstrap.Build(cfg, database.GetDB())
	if err != nil {
		appLogger.Fatalf("Failed to build lease engine: %v", err)
	}

	app.Emitter.Start()
	defer app.Emitter.Stop()

	// 启动到期清扫调度器（在路由初始化前）
	if err := app.Sweeper.Start(); err != nil {
		appLogger.Errorf("Failed to start expiry sweeper: %v", err)
	}
	defer app.Sweeper.Stop()

	r := router.SetupRouter(router.Dependencies{
		Config:       cfg,
		JWTManager:   app.JWT,
		LeaseService: app.Leases,
		Sweeper:      app.Sweeper,
		EventHub:     app.Hub,
		Checkers: map[string]handlers.HealthChecker{
			"database": database.Ping,
			"redis":    app.Queue.Ping,
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}
	appLogger.Info("Server exited")
}
