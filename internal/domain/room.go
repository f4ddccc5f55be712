package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Room 表示一个以 6 位房间码寻址的多人游戏房间。
type Room struct {
	ID         uint       `gorm:"primaryKey"`                    // 房间唯一标识符 (主键)
	Code       string     `gorm:"uniqueIndex;size:191;not null"` // 6 位大写字母数字房间码，必须唯一
	Status     RoomStatus `gorm:"size:20;not null;index"`        // 生命周期状态 (见 status.go 的转换表)
	HostID     *uint      `gorm:"index"`                         // 当前房主的 participant ID，迁移窗口期间可能为空
	GameType   string     `gorm:"size:100;not null"`             // 声明的游戏类型
	Capacity   int        `gorm:"not null"`                      // 房间容量 (不含旁观者)
	Version    uint       `gorm:"not null;default:0"`            // 单调递增版本号，用于乐观并发与快照去重
	Metadata   string     `gorm:"type:text"`                     // 半结构化元数据 (JSON)，宽限窗口到期时间存在这里
	LastActive time.Time  `gorm:"index"`                         // 房间最后活跃时间，Reaper 据此判断闲置
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
}

// RoomMetadata 是 Room.Metadata 字段的已知结构部分。
type RoomMetadata struct {
	// GraceUntil 为宽限窗口到期时间；窗口激活期间，该房间由断连触发的
	// 状态变更会被同步引擎抑制 (防止大厅返回途中的传输层抖动)。
	GraceUntil *time.Time `json:"grace_until,omitempty"`
}

// ParseMetadata 将 Metadata 字段 (JSON 字符串) 解析为 RoomMetadata。
// 空字符串视为零值，不是错误。
func (r *Room) ParseMetadata() (RoomMetadata, error) {
	var meta RoomMetadata
	if r.Metadata == "" || r.Metadata == "null" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal room metadata: %w", err)
	}
	return meta, nil
}

// SetMetadata 将 RoomMetadata 序列化回 Metadata 字段。
func (r *Room) SetMetadata(meta RoomMetadata) error {
	bytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal room metadata: %w", err)
	}
	r.Metadata = string(bytes)
	return nil
}

// GraceActive 判断在 now 时刻宽限窗口是否处于激活状态。
// 元数据解析失败按窗口未激活处理，宽限窗口只是保护措施，不能阻塞写路径。
func (r *Room) GraceActive(now time.Time) bool {
	meta, err := r.ParseMetadata()
	if err != nil || meta.GraceUntil == nil {
		return false
	}
	return now.Before(*meta.GraceUntil)
}

// SetGraceWindow 在元数据中写入一个从 now 起持续 d 的宽限窗口。
func (r *Room) SetGraceWindow(now time.Time, d time.Duration) error {
	meta, err := r.ParseMetadata()
	if err != nil {
		meta = RoomMetadata{}
	}
	until := now.Add(d)
	meta.GraceUntil = &until
	return r.SetMetadata(meta)
}

// ClearGraceWindow 清除宽限窗口（到期后的清理）。
func (r *Room) ClearGraceWindow() error {
	meta, err := r.ParseMetadata()
	if err != nil {
		meta = RoomMetadata{}
	}
	meta.GraceUntil = nil
	return r.SetMetadata(meta)
}
