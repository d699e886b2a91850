package bootstrap

import (
	"fmt"

	"leasehub/internal/database"
	"leasehub/internal/services"
	"leasehub/pkg/config"
	"leasehub/pkg/jwt"
	"leasehub/pkg/logger"
	"leasehub/pkg/queue"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 装配好的租约引擎及其协作方
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Queue   *queue.RedisEventQueue
	Hub     *services.EventHub
	Emitter *services.AsyncEmitter
	Leases  *services.LeaseService
	Sweeper *services.ExpirySweeper
	JWT     *jwt.JWTManager
}

// Build 按配置装配；数据库需已初始化
func Build(cfg *config.Config, db *gorm.DB) (*App, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库未初始化")
	}

	redisClient := database.GetRedis()
	eventQueue := queue.NewRedisEventQueue(redisClient, cfg.Redis.Prefix, 0)
	hub := services.NewEventHub(0)

	sink := services.MultiSink{
		{Name: "queue", Sink: services.NewQueueSink(eventQueue)},
		{Name: "hub", Sink: hub},
		{Name: "log", Sink: services.LogSink{}},
	}
	emitter := services.NewAsyncEmitter(sink, db, cfg.Lease.EventBuffer)

	locker, err := newUnitLocker(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	leases := services.NewLeaseService(
		db,
		services.NewUnitDirectory(db),
		services.NewTenantDirectory(db),
		locker,
		emitter,
		services.LeaseOptionsFromConfig(cfg.Lease),
	)

	sweeper := services.NewExpirySweeper(db, emitter, emitter, services.SweeperOptions{
		SweepCron: cfg.Lease.SweepCron,
		RetryCron: cfg.Lease.EventRetryCron,
		BatchSize: cfg.Lease.SweepBatchSize,
		TxTimeout: cfg.Lease.TxTimeout,
		TxRetries: cfg.Lease.TxRetries,
	})

	return &App{
		Config:  cfg,
		DB:      db,
		Redis:   redisClient,
		Queue:   eventQueue,
		Hub:     hub,
		Emitter: emitter,
		Leases:  leases,
		Sweeper: sweeper,
		JWT:     jwt.GetJWTManager(),
	}, nil
}

func newUnitLocker(cfg *config.Config, client *redis.Client) (services.UnitLocker, error) {
	switch cfg.Lease.LockBackend {
	case config.LockBackendRedis:
		logger.GetLogger().Info("单元锁使用 Redis")
		return services.NewRedisUnitLocker(client, cfg.Redis.Prefix, cfg.Lease.LockTTL), nil
	case config.LockBackendLocal:
		logger.GetLogger().Warn("单元锁使用进程内实现，仅适用于单实例部署")
		return services.NewLocalUnitLocker(), nil
	default:
		return nil, fmt.Errorf("未知的单元锁后端: %s", cfg.Lease.LockBackend)
	}
}
