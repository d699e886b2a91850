package database

import (
	"sync"

	"leasehub/pkg/config"
	"leasehub/pkg/queue"

	"github.com/go-redis/redis/v8"
)

var (
	redisClient     *redis.Client
	redisClientOnce sync.Once
)

// GetRedis 获取Redis客户端单例（单元锁与事件队列共用）
func GetRedis() *redis.Client {
	redisClientOnce.Do(func() {
		cfg := config.GetConfig()
		redisClient = queue.NewClient(&queue.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	})
	return redisClient
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
