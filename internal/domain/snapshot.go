package domain

import "time"

// RoomSnapshot 是向订阅者广播的权威房间视图。
// 永远是完整快照而不是增量；Version 即 Room.Version，
// 订阅者可据此丢弃比已应用快照更旧的消息。
type RoomSnapshot struct {
	RoomID      uint                 `json:"room_id"`
	Code        string               `json:"code"`
	Status      RoomStatus           `json:"status"`
	HostID      *uint                `json:"host_id"`
	GameType    string               `json:"game_type"`
	Capacity    int                  `json:"capacity"`
	Version     uint                 `json:"version"`
	GraceUntil  *time.Time           `json:"grace_until,omitempty"`
	Memberships []MembershipSnapshot `json:"memberships"`
}

// MembershipSnapshot 是单个成员状态的只读视图。
type MembershipSnapshot struct {
	ParticipantID uint      `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Role          Role      `json:"role"`
	Connected     bool      `json:"connected"`
	Location      Location  `json:"location"`
	Ready         bool      `json:"ready"`
	InGame        bool      `json:"in_game"`
	Version       uint      `json:"version"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	JoinedAt      time.Time `json:"joined_at"`
}

// SnapshotOf 由成员记录构造快照片段。
func SnapshotOf(m *Membership) MembershipSnapshot {
	return MembershipSnapshot{
		ParticipantID: m.ParticipantID,
		DisplayName:   m.DisplayName,
		Role:          m.Role,
		Connected:     m.Connected,
		Location:      m.Location,
		Ready:         m.Ready,
		InGame:        m.InGame,
		Version:       m.Version,
		LastHeartbeat: m.LastHeartbeat,
		JoinedAt:      m.JoinedAt,
	}
}

// BuildRoomSnapshot 由房间与成员列表构造完整的权威快照。
func BuildRoomSnapshot(room *Room, memberships []Membership) RoomSnapshot {
	snap := RoomSnapshot{
		RoomID:      room.ID,
		Code:        room.Code,
		Status:      room.Status,
		HostID:      room.HostID,
		GameType:    room.GameType,
		Capacity:    room.Capacity,
		Version:     room.Version,
		Memberships: make([]MembershipSnapshot, 0, len(memberships)),
	}
	if meta, err := room.ParseMetadata(); err == nil {
		snap.GraceUntil = meta.GraceUntil
	}
	for i := range memberships {
		snap.Memberships = append(snap.Memberships, SnapshotOf(&memberships[i]))
	}
	return snap
}
