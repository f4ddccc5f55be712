package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gamebuddies-server/internal/domain"
)

// MigrateDB 迁移全部数据库模式。
// 模型上带 size 限制的索引标签避免了 TEXT/BLOB 列索引长度问题。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.Participant{},
		&domain.Room{},
		&domain.Membership{},
		&domain.RoomEvent{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
