package repository

import (
	"context"

	"gamebuddies-server/internal/domain"
)

// RoomEventRepository 定义了房间状态转换审计记录的操作。
// 记录只追加，不提供更新或删除。
type RoomEventRepository interface {
	// Append 追加一条转换记录。
	Append(ctx context.Context, event *domain.RoomEvent) error

	// ListByRoom 返回房间最近的 limit 条转换记录 (按时间降序)。
	ListByRoom(ctx context.Context, roomID uint, limit int) ([]domain.RoomEvent, error)
}
