package domain

import "fmt"

// RoomStatus 表示房间生命周期状态（封闭枚举）。
// 所有合法的状态转换由 roomTransitions 表集中定义，
// 任何不在表中的转换都会在构造转换时报错，而不是散落在运行时分支里。
type RoomStatus string

const (
	StatusLobby     RoomStatus = "lobby"     // 初始状态，成员在大厅等待
	StatusInGame    RoomStatus = "in_game"   // 外部游戏进程接管中
	StatusReturning RoomStatus = "returning" // 游戏结束，成员陆续返回大厅
	StatusAbandoned RoomStatus = "abandoned" // 房间内已无任何连接成员（唯一的"空房间"终态）
	StatusFinished  RoomStatus = "finished"  // 房主或游戏显式关闭
)

// roomTransitions 是房间状态机的中心转换表。
// 注意: * → abandoned 对所有非终态状态开放，这是唯一的空房间路径。
var roomTransitions = map[RoomStatus]map[RoomStatus]bool{
	StatusLobby: {
		StatusInGame:    true,
		StatusAbandoned: true,
		StatusFinished:  true,
	},
	StatusInGame: {
		StatusLobby:     true, // 外部游戏上报全员 returned_to_lobby
		StatusReturning: true, // 房主发起 "return all"，等待掉队成员
		StatusAbandoned: true,
		StatusFinished:  true,
	},
	StatusReturning: {
		StatusLobby:     true,
		StatusAbandoned: true,
	},
	// abandoned / finished 是终态，没有出边
	StatusAbandoned: {},
	StatusFinished:  {},
}

// CanTransition 判断 from → to 是否是合法的状态转换。
func CanTransition(from, to RoomStatus) bool {
	targets, ok := roomTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal 判断状态是否为终态（终态房间等待 Reaper 按保留期清理）。
func (s RoomStatus) IsTerminal() bool {
	return s == StatusAbandoned || s == StatusFinished
}

// Valid 判断状态值是否属于封闭枚举。
func (s RoomStatus) Valid() bool {
	switch s {
	case StatusLobby, StatusInGame, StatusReturning, StatusAbandoned, StatusFinished:
		return true
	}
	return false
}

// ParseRoomStatus 将字符串解析为 RoomStatus，非法值返回错误。
func ParseRoomStatus(s string) (RoomStatus, error) {
	status := RoomStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid room status %q", s)
	}
	return status, nil
}

// --- 状态转换的事件原因 (写入 room_events.cause) ---

const (
	CauseHostStart     = "host_start"      // 房主开始游戏
	CauseAllReturned   = "all_returned"    // 外部游戏上报全员回到大厅
	CauseHostReturnAll = "host_return_all" // 房主发起全员返回
	CauseEmptyRoom     = "empty_room"      // 最后一个连接成员离开/掉线
	CauseHostMigration = "host_migration"  // 房主迁移
	CauseHostClose     = "host_close"      // 房主显式关闭房间
)
