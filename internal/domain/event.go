package domain

import "time"

// RoomEvent 是房间状态转换的不可变审计记录。
// 只追加，创建后绝不更新或删除。
type RoomEvent struct {
	ID        uint       `gorm:"primaryKey"`
	RoomID    uint       `gorm:"index;not null"`
	OldStatus RoomStatus `gorm:"size:20;not null"`
	NewStatus RoomStatus `gorm:"size:20;not null"`
	Cause     string     `gorm:"size:50;not null"` // 见 status.go 中的 Cause* 常量
	At        time.Time  `gorm:"index;not null"`
}
