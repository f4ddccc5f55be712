package repository

import (
	"context"
	"time"

	"gamebuddies-server/internal/domain"
)

// MembershipRepository 定义了成员记录的存储和检索操作。
// 所有状态写入都应通过 UpdateVersioned 走乐观并发路径，
// 同步引擎是唯一的调用方 (加入/离开除外)。
type MembershipRepository interface {
	// FindByRoomAndParticipant 按 (房间, 参与者) 唯一对查找成员记录。
	// 不存在时返回 ErrMembershipNotFound。
	FindByRoomAndParticipant(ctx context.Context, roomID, participantID uint) (*domain.Membership, error)

	// ListByRoom 返回房间的全部成员记录 (按 joined_at 升序，房主继任顺序依赖该排序)。
	ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error)

	// Create 创建成员记录。(room_id, participant_id) 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, m *domain.Membership) error

	// UpdateVersioned 以乐观并发方式更新成员记录，
	// 语义与 RoomRepository.UpdateVersioned 一致。
	UpdateVersioned(ctx context.Context, m *domain.Membership, expectedVersion uint) error

	// Delete 删除成员记录 (显式离开)。记录不存在视为已完成，返回 ErrMembershipNotFound。
	Delete(ctx context.Context, roomID, participantID uint) error

	// CountConnected 返回房间内 connected = true 的成员数。
	CountConnected(ctx context.Context, roomID uint) (int64, error)

	// FindStaleConnected 返回 connected = true 但 last_heartbeat 早于 cutoff 的成员，
	// 供 Reaper 的连接对账扫描使用。
	FindStaleConnected(ctx context.Context, cutoff time.Time) ([]domain.Membership, error)

	// DeleteByRoom 删除房间的全部成员记录 (房间清理时使用)。
	DeleteByRoom(ctx context.Context, roomID uint) error
}
