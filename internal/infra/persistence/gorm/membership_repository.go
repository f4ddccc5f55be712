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

// GormMembershipRepository 是 MembershipRepository 接口的 GORM 实现
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository 创建 GormMembershipRepository 实例
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

// FindByRoomAndParticipant 按 (房间, 参与者) 唯一对查找成员记录
func (r *GormMembershipRepository) FindByRoomAndParticipant(ctx context.Context, roomID, participantID uint) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND participant_id = ?", roomID, participantID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership (room %d, participant %d): %w", roomID, participantID, err)
	}
	return &m, nil
}

// ListByRoom 返回房间全部成员，按 joined_at 升序 (房主继任顺序)
func (r *GormMembershipRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships for room %d: %w", roomID, err)
	}
	return memberships, nil
}

// Create 创建成员记录，唯一对冲突映射为 ErrDuplicateEntry
func (r *GormMembershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create membership (room %d, participant %d): %w", m.RoomID, m.ParticipantID, err)
	}
	return nil
}

// UpdateVersioned 条件更新成员记录，语义同 RoomRepository.UpdateVersioned
func (r *GormMembershipRepository) UpdateVersioned(ctx context.Context, m *domain.Membership, expectedVersion uint) error {
	m.Version = expectedVersion + 1
	result := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("id = ? AND version = ?", m.ID, expectedVersion).
		Updates(map[string]interface{}{
			"role":           m.Role,
			"connected":      m.Connected,
			"location":       m.Location,
			"ready":          m.Ready,
			"in_game":        m.InGame,
			"last_heartbeat": m.LastHeartbeat,
			"handle":         m.Handle,
			"version":        m.Version,
			"game_data":      m.GameData,
		})
	if result.Error != nil {
		m.Version = expectedVersion
		return fmt.Errorf("gorm: update membership %d (version %d): %w", m.ID, expectedVersion, result.Error)
	}
	if result.RowsAffected == 0 {
		m.Version = expectedVersion
		return repository.ErrVersionConflict
	}
	return nil
}

// Delete 删除成员记录；不存在时返回 ErrMembershipNotFound
func (r *GormMembershipRepository) Delete(ctx context.Context, roomID, participantID uint) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND participant_id = ?", roomID, participantID).
		Delete(&domain.Membership{})
	if result.Error != nil {
		return fmt.Errorf("gorm: delete membership (room %d, participant %d): %w", roomID, participantID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrMembershipNotFound
	}
	return nil
}

// CountConnected 返回房间内 connected = true 的成员数
func (r *GormMembershipRepository) CountConnected(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("room_id = ? AND connected = ?", roomID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count connected memberships for room %d: %w", roomID, err)
	}
	return count, nil
}

// FindStaleConnected 返回 connected = true 且 last_heartbeat 早于 cutoff 的成员
func (r *GormMembershipRepository) FindStaleConnected(ctx context.Context, cutoff time.Time) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("connected = ? AND last_heartbeat < ?", true, cutoff).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find stale connected memberships: %w", err)
	}
	return memberships, nil
}

// DeleteByRoom 删除房间全部成员记录
func (r *GormMembershipRepository) DeleteByRoom(ctx context.Context, roomID uint) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&domain.Membership{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete memberships for room %d: %w", roomID, err)
	}
	return nil
}
