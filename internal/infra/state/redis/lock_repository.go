package redisstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RedisLockRepository 是 LockRepository 接口的 Redis 实现。
// SetNX + TTL 实现短生命周期咨询锁；TTL 是崩溃未释放时的兜底清理，
// 正常路径通过 release 函数显式释放 (带持有者 token 校验，避免误删他人的锁)。
type RedisLockRepository struct {
	client    *redis.Client
	keyPrefix string
}

// releaseScript 仅当锁仍由本持有者持有时才删除 key。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisLockRepository 创建 RedisLockRepository 实例
func NewRedisLockRepository(client *redis.Client, keyPrefix string) *RedisLockRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisLockRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "gb:"
	}
	return &RedisLockRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisLockRepository) joinLockKey(participantID uint, roomCode string) string {
	return fmt.Sprintf("%slock:join:%d:%s", r.keyPrefix, participantID, roomCode)
}

// AcquireJoinLock 尝试获取 (participantID, roomCode) 的加入锁。
// 返回的 release 在任何退出路径上调用都安全，且幂等。
func (r *RedisLockRepository) AcquireJoinLock(ctx context.Context, participantID uint, roomCode string, ttl time.Duration) (func(), bool, error) {
	key := r.joinLockKey(participantID, roomCode)
	token := uuid.NewString()

	acquired, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: failed to acquire join lock %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// 释放使用独立的短超时 context，调用方的 ctx 可能已取消
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
				// 释放失败不致命，TTL 会兜底清理
				logrus.WithError(err).WithField("lock_key", key).Warn("Failed to release join lock, relying on TTL")
			}
		})
	}
	return release, true, nil
}
