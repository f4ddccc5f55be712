package repository

import (
	"context"

	"gamebuddies-server/internal/domain"
)

// ParticipantRepository 定义了参与者身份记录的操作 (身份协作方使用)。
type ParticipantRepository interface {
	// FindByID 根据 ID 查找参与者，不存在时返回 ErrParticipantNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Participant, error)

	// FindByName 根据名称查找参与者。
	FindByName(ctx context.Context, name string) (*domain.Participant, error)

	// Save 保存参与者 (创建或更新)。名称冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, p *domain.Participant) error
}
