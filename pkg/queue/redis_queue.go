package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// EventMessage 队列中的事件消息
type EventMessage struct {
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt int64           `json:"published_at"`
}

// RedisEventQueue 基于Redis列表的事件队列，同时向频道广播
type RedisEventQueue struct {
	client *redis.Client
	prefix string
	maxLen int64
}

const defaultMaxLen = 10000

// NewClient 创建Redis客户端
func NewClient(config *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})
}

// NewRedisEventQueue 创建事件队列，maxLen<=0 时使用默认上限
func NewRedisEventQueue(client *redis.Client, prefix string, maxLen int64) *RedisEventQueue {
	if prefix == "" {
		prefix = "leasehub"
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisEventQueue{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
	}
}

func (q *RedisEventQueue) Close() error {
	return q.client.Close()
}

func (q *RedisEventQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Publish 事件入队（左侧入队，超出上限的旧事件被裁剪）并发布到频道
func (q *RedisEventQueue) Publish(ctx context.Context, name string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %v", err)
	}
	data, err := json.Marshal(EventMessage{
		Name:        name,
		Payload:     raw,
		PublishedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("序列化事件消息失败: %v", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.getQueueKey(), data)
	pipe.LTrim(ctx, q.getQueueKey(), 0, q.maxLen-1)
	pipe.Publish(ctx, q.getChannelKey(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("事件入队失败: %v", err)
	}
	return nil
}

// Pop 从右侧取出最早的事件，timeout 内无事件时返回 nil
func (q *RedisEventQueue) Pop(ctx context.Context, timeout time.Duration) (*EventMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.getQueueKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取事件失败: %v", err)
	}

	// BRPOP 返回 [key, value]
	var msg EventMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("解析事件失败: %v", err)
	}
	return &msg, nil
}

// Len 队列长度
func (q *RedisEventQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.getQueueKey()).Result()
}

// Subscribe 订阅事件频道
func (q *RedisEventQueue) Subscribe(ctx context.Context) *redis.PubSub {
	return q.client.Subscribe(ctx, q.getChannelKey())
}

func (q *RedisEventQueue) getQueueKey() string {
	return fmt.Sprintf("%s:events", q.prefix)
}

func (q *RedisEventQueue) getChannelKey() string {
	return fmt.Sprintf("%s:channel:events", q.prefix)
}
