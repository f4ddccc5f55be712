package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// GormParticipantRepository 是 ParticipantRepository 接口的 GORM 实现
type GormParticipantRepository struct {
	db *gorm.DB
}

// NewGormParticipantRepository 创建 GormParticipantRepository 实例
func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	if db == nil {
		panic("database connection cannot be nil for GormParticipantRepository")
	}
	return &GormParticipantRepository{db: db}
}

// FindByID 根据 ID 查找参与者
func (r *GormParticipantRepository) FindByID(ctx context.Context, id uint) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("gorm: find participant by id %d: %w", id, err)
	}
	return &p, nil
}

// FindByName 根据名称查找参与者
func (r *GormParticipantRepository) FindByName(ctx context.Context, name string) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("gorm: find participant by name '%s': %w", name, err)
	}
	return &p, nil
}

// Save 保存参与者，名称唯一约束冲突映射为 ErrDuplicateEntry
func (r *GormParticipantRepository) Save(ctx context.Context, p *domain.Participant) error {
	err := r.db.WithContext(ctx).Save(p).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save participant (name: %s): %w", p.Name, err)
	}
	return nil
}
