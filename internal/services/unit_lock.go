package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leasehub/pkg/errors"
	"leasehub/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// UnitLocker 单元级互斥锁，ctx 到期仍未拿到锁时返回 Busy
type UnitLocker interface {
	Lock(ctx context.Context, unitID uint) (unlock func(), err error)
}

// ========== 进程内实现 ==========

type unitSlot struct {
	ch   chan struct{}
	refs int
}

// LocalUnitLocker 单实例部署使用的按单元分桶的锁
type LocalUnitLocker struct {
	mu    sync.Mutex
	slots map[uint]*unitSlot
}

func NewLocalUnitLocker() *LocalUnitLocker {
	return &LocalUnitLocker{slots: make(map[uint]*unitSlot)}
}

func (l *LocalUnitLocker) Lock(ctx context.Context, unitID uint) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[unitID]
	if !ok {
		slot = &unitSlot{ch: make(chan struct{}, 1)}
		l.slots[unitID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(unitID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(unitID, slot)
		return nil, errors.Busy(fmt.Sprintf("单元 %d 正在被其他请求占用，请稍后重试", unitID), ctx.Err())
	}
}

func (l *LocalUnitLocker) release(unitID uint, slot *unitSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, unitID)
	}
}

// ========== Redis 实现 ==========

// 只有持有者才能释放
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisUnitLocker 多实例部署使用的分布式锁（SET NX PX）
type RedisUnitLocker struct {
	client       *redis.Client
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
}

func NewRedisUnitLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisUnitLocker {
	if prefix == "" {
		prefix = "leasehub"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisUnitLocker{
		client:       client,
		prefix:       prefix,
		ttl:          ttl,
		pollInterval: 20 * time.Millisecond,
	}
}

func (l *RedisUnitLocker) Lock(ctx context.Context, unitID uint) (func(), error) {
	key := l.getLockKey(unitID)
	token := uuid.NewString()
	wait := l.pollInterval

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Busy(fmt.Sprintf("单元 %d 正在被其他请求占用，请稍后重试", unitID), ctx.Err())
			}
			return nil, errors.Busy("获取单元锁失败", err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Busy(fmt.Sprintf("单元 %d 正在被其他请求占用，请稍后重试", unitID), ctx.Err())
		case <-timer.C:
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}
}

// 释放不受请求 ctx 取消影响
func (l *RedisUnitLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		logger.GetLogger().WithError(err).Warnf("释放单元锁 %s 失败，将等待自动过期", key)
	}
}

func (l *RedisUnitLocker) getLockKey(unitID uint) string {
	return fmt.Sprintf("%s:lock:unit:%d", l.prefix, unitID)
}
