package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gamebuddies-server/internal/domain"
)

// GormRoomEventRepository 是 RoomEventRepository 接口的 GORM 实现。
// room_events 表只追加，这里刻意不提供 Update/Delete。
type GormRoomEventRepository struct {
	db *gorm.DB
}

// NewGormRoomEventRepository 创建 GormRoomEventRepository 实例
func NewGormRoomEventRepository(db *gorm.DB) *GormRoomEventRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomEventRepository")
	}
	return &GormRoomEventRepository{db: db}
}

// Append 追加一条转换记录
func (r *GormRoomEventRepository) Append(ctx context.Context, event *domain.RoomEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		return fmt.Errorf("gorm: append room event (room %d, %s -> %s): %w",
			event.RoomID, event.OldStatus, event.NewStatus, err)
	}
	return nil
}

// ListByRoom 返回房间最近的 limit 条转换记录
func (r *GormRoomEventRepository) ListByRoom(ctx context.Context, roomID uint, limit int) ([]domain.RoomEvent, error) {
	var events []domain.RoomEvent
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("gorm: list room events for room %d: %w", roomID, err)
	}
	return events, nil
}
