package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByCode 根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// Create 创建新房间，房间码唯一约束冲突映射为 ErrDuplicateEntry
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Create(room).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (code: %s): %w", room.Code, err)
	}
	return nil
}

// UpdateVersioned 条件更新: WHERE id = ? AND version = expectedVersion。
// RowsAffected == 0 说明版本已被并发写入推进，返回 ErrVersionConflict。
func (r *GormRoomRepository) UpdateVersioned(ctx context.Context, room *domain.Room, expectedVersion uint) error {
	room.Version = expectedVersion + 1
	result := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND version = ?", room.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":      room.Status,
			"host_id":     room.HostID,
			"version":     room.Version,
			"metadata":    room.Metadata,
			"last_active": room.LastActive,
		})
	if result.Error != nil {
		room.Version = expectedVersion // 写入失败，恢复内存中的版本号
		return fmt.Errorf("gorm: update room %d (version %d): %w", room.ID, expectedVersion, result.Error)
	}
	if result.RowsAffected == 0 {
		room.Version = expectedVersion
		return repository.ErrVersionConflict
	}
	return nil
}

// IsCodeTaken 检查房间码是否被非终态房间占用。
// 终态房间不再占用房间码，同一个码可以被新房间复用。
func (r *GormRoomRepository) IsCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("code = ? AND status NOT IN ?", code, []domain.RoomStatus{domain.StatusAbandoned, domain.StatusFinished}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// FindTerminalOlderThan 返回进入终态且最后更新早于 cutoff 的房间
func (r *GormRoomRepository) FindTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []domain.RoomStatus{domain.StatusAbandoned, domain.StatusFinished}, cutoff).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find terminal rooms older than %s: %w", cutoff, err)
	}
	return rooms, nil
}

// FindIdleSince 返回 last_active 早于 cutoff 的非终态房间
func (r *GormRoomRepository) FindIdleSince(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("status NOT IN ? AND last_active < ?", []domain.RoomStatus{domain.StatusAbandoned, domain.StatusFinished}, cutoff).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find idle rooms since %s: %w", cutoff, err)
	}
	return rooms, nil
}

// Delete 删除房间记录
func (r *GormRoomRepository) Delete(ctx context.Context, roomID uint) error {
	err := r.db.WithContext(ctx).Delete(&domain.Room{}, roomID).Error
	if err != nil {
		return fmt.Errorf("gorm: delete room %d: %w", roomID, err)
	}
	return nil
}
