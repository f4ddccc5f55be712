package domain

import "time"

// Participant 表示一个已注册的参与者身份。
// 身份的签发与校验属于协作方逻辑 (AuthService)，协调器核心只消费 ID。
type Participant struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(191);uniqueIndex:idx_participant_name;not null"`
	Password  string    `gorm:"type:text;not null"` // bcrypt 哈希，绝不存明文
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
