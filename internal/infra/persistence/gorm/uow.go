package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gamebuddies-server/internal/repository"
)

// GormUnitOfWork 是 UnitOfWork 接口的 GORM 实现。
// 每次 Do 调用开启一个数据库事务，并在事务句柄上重建各个仓库，
// fn 返回错误时由 gorm 负责回滚。
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork 创建 GormUnitOfWork 实例
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	if db == nil {
		panic("database connection cannot be nil for GormUnitOfWork")
	}
	return &GormUnitOfWork{db: db}
}

// Do 在单个事务中执行 fn
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(stores repository.Stores) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stores := repository.Stores{
			Rooms:       NewGormRoomRepository(tx),
			Memberships: NewGormMembershipRepository(tx),
			Events:      NewGormRoomEventRepository(tx),
		}
		return fn(stores)
	})
	if err != nil {
		return fmt.Errorf("gorm: unit of work: %w", err)
	}
	return nil
}
