package repository

import (
	"context"
	"time"
)

// LockRepository 定义了短生命周期的咨询锁，通常由 Redis 实现。
// 加入/重连序列围绕 (participantID, roomCode) 加锁，
// 防止同一逻辑参与者的两次连接尝试互相竞争产生重复成员行。
// TTL 同时充当崩溃未释放时的兜底清理 (janitor)。
type LockRepository interface {
	// AcquireJoinLock 尝试获取加入锁。
	// 成功时返回释放函数和 true；锁被占用时返回 false。
	// 释放函数在任何退出路径上调用都是安全的 (幂等)。
	AcquireJoinLock(ctx context.Context, participantID uint, roomCode string, ttl time.Duration) (release func(), acquired bool, err error)
}
