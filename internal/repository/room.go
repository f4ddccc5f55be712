package repository

import (
	"context"
	"time"

	"gamebuddies-server/internal/domain"
)

// RoomRepository 定义了房间持久化记录的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByCode 根据房间码查找房间。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Create 创建新房间。房间码冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// UpdateVersioned 以乐观并发方式更新房间:
	// 仅当数据库中的 version 等于 expectedVersion 时写入，
	// 写入时将 version 置为 expectedVersion+1。
	// 版本不匹配时返回 ErrVersionConflict，调用方负责重读重试。
	UpdateVersioned(ctx context.Context, room *domain.Room, expectedVersion uint) error

	// IsCodeTaken 检查房间码是否已被某个非终态房间占用。
	// 终态房间 (abandoned/finished) 不占用房间码。
	IsCodeTaken(ctx context.Context, code string) (bool, error)

	// FindTerminalOlderThan 返回进入终态且最后更新早于 cutoff 的房间，供 Reaper 做保留期清理。
	FindTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Room, error)

	// FindIdleSince 返回 last_active 早于 cutoff 的非终态房间。
	FindIdleSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error)

	// Delete 删除房间记录 (Reaper 专用；成员行由 MembershipRepository.DeleteByRoom 清理)。
	Delete(ctx context.Context, roomID uint) error
}
