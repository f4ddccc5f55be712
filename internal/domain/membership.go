package domain

import (
	"fmt"
	"time"
)

// Role 表示成员在房间内的角色。
type Role string

const (
	RoleHost      Role = "host"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Location 表示成员当前所处的位置。
type Location string

const (
	LocationLobby        Location = "lobby"
	LocationGame         Location = "game"
	LocationDisconnected Location = "disconnected"
)

// Membership 表示一个参与者在某个房间内的状态。
// (RoomID, ParticipantID) 全局唯一；所有写入都经过同步引擎的乐观版本检查。
//
// 不变量:
//   - Connected == false 蕴含 Location == disconnected
//   - Location == game 蕴含 Connected == true 且 Handle == nil
//     (进入外部游戏后传输会话不再活跃，成员只通过外部状态上报存在)
type Membership struct {
	ID            uint      `gorm:"primaryKey"`
	RoomID        uint      `gorm:"uniqueIndex:idx_room_participant;not null"` // 所属房间 (联合唯一索引防止重复行)
	ParticipantID uint      `gorm:"uniqueIndex:idx_room_participant;not null"` // 参与者 ID
	DisplayName   string    `gorm:"size:100;not null"`                         // 加入时冗余存储的显示名，快照直接使用
	Role          Role      `gorm:"size:20;not null"`                          // host | player | spectator
	Connected     bool      `gorm:"not null"`                                  // 传输层连接标志
	Location      Location  `gorm:"size:20;not null"`                          // lobby | game | disconnected
	Ready         bool      `gorm:"not null;default:false"`                    // 大厅准备标志
	InGame        bool      `gorm:"not null;default:false"`                    // 是否在外部游戏进程中
	LastHeartbeat time.Time `gorm:"index"`                                     // 最后一次心跳的持久化时间
	Handle        *string   `gorm:"size:64"`                                   // 活跃连接句柄，进入游戏或断连后为 nil
	Version       uint      `gorm:"not null;default:0"`                        // 乐观并发版本号
	GameData      string    `gorm:"type:text"`                                 // 游戏特定的不透明负载 (JSON)
	JoinedAt      time.Time `gorm:"index;not null"`                            // 加入时间，房主继任顺序据此决定
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// LogicalStatus 是同步引擎对外暴露的逻辑状态封闭集合。
// 每个逻辑状态对 (Connected, Location, InGame) 三元组的映射是全函数且纯函数，
// 绝不根据调用方身份分支。
type LogicalStatus string

const (
	LogicalConnected       LogicalStatus = "connected"
	LogicalDisconnected    LogicalStatus = "disconnected"
	LogicalInGame          LogicalStatus = "in_game"
	LogicalReturnedToLobby LogicalStatus = "returned_to_lobby"
)

// StatusTriple 是逻辑状态映射出的持久化字段三元组。
type StatusTriple struct {
	Connected bool
	Location  Location
	InGame    bool
}

// logicalStatusMapping 集中定义逻辑状态到字段三元组的全映射。
var logicalStatusMapping = map[LogicalStatus]StatusTriple{
	LogicalConnected:       {Connected: true, Location: LocationLobby, InGame: false},
	LogicalDisconnected:    {Connected: false, Location: LocationDisconnected, InGame: false},
	LogicalInGame:          {Connected: true, Location: LocationGame, InGame: true},
	LogicalReturnedToLobby: {Connected: true, Location: LocationLobby, InGame: false},
}

// Triple 返回逻辑状态对应的字段三元组。
func (s LogicalStatus) Triple() StatusTriple {
	return logicalStatusMapping[s]
}

// Valid 判断逻辑状态是否属于封闭集合。
func (s LogicalStatus) Valid() bool {
	_, ok := logicalStatusMapping[s]
	return ok
}

// ParseLogicalStatus 将字符串解析为 LogicalStatus，非法值返回错误。
func ParseLogicalStatus(s string) (LogicalStatus, error) {
	status := LogicalStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid logical status %q", s)
	}
	return status, nil
}

// ApplyLogicalStatus 将逻辑状态映射到成员记录上，并维护模型不变量。
// location == game 时清空连接句柄。
func (m *Membership) ApplyLogicalStatus(status LogicalStatus) {
	triple := status.Triple()
	m.Connected = triple.Connected
	m.Location = triple.Location
	m.InGame = triple.InGame
	if !triple.Connected || triple.Location == LocationGame {
		m.Handle = nil
	}
}

// StatusEquals 判断成员当前字段是否已经与目标逻辑状态一致。
// 同步引擎用它判定心跳写入是否可以合并。
func (m *Membership) StatusEquals(status LogicalStatus) bool {
	triple := status.Triple()
	return m.Connected == triple.Connected &&
		m.Location == triple.Location &&
		m.InGame == triple.InGame
}
