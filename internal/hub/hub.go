package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// 客户端消息类型 (实时连接协议)
const (
	msgJoin         = "join"
	msgLeave        = "leave"
	msgUpdateStatus = "update_status"
	msgHeartbeat    = "heartbeat"
	msgReady        = "ready"
	msgStartGame    = "start_game"
	msgReturnAll    = "return_all"
	msgFinish       = "finish"
)

// ClientMessage 是客户端发往服务端的协议信封。
type ClientMessage struct {
	Type        string `json:"type"`
	RoomCode    string `json:"room_code,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	GameType    string `json:"game_type,omitempty"`
	Spectator   bool   `json:"spectator,omitempty"`
	Status      string `json:"status,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	Ready       bool   `json:"ready,omitempty"`
}

// ServerMessage 是服务端发往客户端的协议信封。
// 每次被接受的变更都会跟随一条携带完整权威快照的 room_snapshot。
type ServerMessage struct {
	Type     string               `json:"type"`
	Snapshot *domain.RoomSnapshot `json:"snapshot,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// hubMessage 是 Hub 内部通道传递的事件。
type hubMessage struct {
	kind    string // "register", "unregister", "inbound"
	client  *Client
	rawData []byte // 仅 inbound
}

// Hub 维护活跃客户端集合，是广播层的进程本地扇出点。
// 它实现 service.Broadcaster: 生命周期状态机的后置钩子把
// 完整快照交给它，由它发给订阅该房间的每一个注册连接。
type Hub struct {
	messageChan chan hubMessage
	stopOnce    sync.Once

	// 客户端集合，按 RoomID 组织
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex

	// 每个房间已广播的最高版本号，旧版本快照直接丢弃
	lastVersion   map[uint]uint
	lastVersionMu sync.Mutex

	roomService *service.RoomService
	syncEngine  *service.SyncEngine
	lifecycle   *service.LifecycleService
}

// NewHub 创建 Hub 实例。
func NewHub(roomService *service.RoomService, syncEngine *service.SyncEngine, lifecycle *service.LifecycleService) *Hub {
	if roomService == nil || syncEngine == nil || lifecycle == nil {
		panic("services cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan hubMessage, 512),
		rooms:       make(map[uint]map[*Client]bool),
		lastVersion: make(map[uint]uint),
		roomService: roomService,
		syncEngine:  syncEngine,
		lifecycle:   lifecycle,
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.kind {
		case "register":
			// 连接已升级但尚未加入房间；真正的房间订阅在 join 消息成功后建立
		case "unregister":
			h.unregisterClient(msg.client)
		case "inbound":
			// 异步处理客户端消息，避免存储访问阻塞 Hub 主循环
			go h.handleInbound(msg.client, msg.rawData)
		default:
			log.Warnf("Hub: received unknown internal message kind: %s", msg.kind)
		}
	}
	log.Info("Hub is shutting down...")
}

// Stop 关闭 Hub 的事件通道 (幂等)。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.messageChan)
	})
}

// QueueMessage 把内部事件送入 Hub 通道。通道已满时返回 false。
func (h *Hub) QueueMessage(msg hubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		return false
	}
}

// PublishRoomSnapshot 实现 service.Broadcaster。
// 快照永远是全量的；版本号低于已广播版本的快照被丢弃。
func (h *Hub) PublishRoomSnapshot(snapshot domain.RoomSnapshot) {
	h.lastVersionMu.Lock()
	if last, ok := h.lastVersion[snapshot.RoomID]; ok && snapshot.Version < last {
		h.lastVersionMu.Unlock()
		logrus.WithFields(logrus.Fields{
			"room_id":      snapshot.RoomID,
			"version":      snapshot.Version,
			"last_version": last,
		}).Debug("Hub: stale snapshot discarded")
		return
	}
	h.lastVersion[snapshot.RoomID] = snapshot.Version
	h.lastVersionMu.Unlock()

	payload, err := json.Marshal(ServerMessage{Type: "room_snapshot", Snapshot: &snapshot})
	if err != nil {
		logrus.WithError(err).Error("Hub: failed to marshal room snapshot")
		return
	}

	h.roomsMu.RLock()
	clients := h.rooms[snapshot.RoomID]
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			// 发送缓冲已满的慢客户端直接放弃这条快照，下一条全量快照会补齐
			logrus.WithFields(logrus.Fields{
				"room_id":        snapshot.RoomID,
				"participant_id": client.participantID,
			}).Warn("Hub: client send buffer full, snapshot dropped")
		}
	}
	h.roomsMu.RUnlock()
}

// ActiveRoomIDs 返回当前至少有一个订阅连接的房间 ID 列表。
func (h *Hub) ActiveRoomIDs() []uint {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	ids := make([]uint, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// --- 内部处理 ---

// subscribe 把客户端挂到房间的订阅集合上。
func (h *Hub) subscribe(client *Client, roomID uint) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if old := client.room(); old != 0 && old != roomID {
		if set, ok := h.rooms[old]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.rooms, old)
			}
		}
	}
	client.setRoom(roomID)
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

// unregisterClient 处理连接断开: 取消订阅并把断连交给同步引擎落盘。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	roomID := client.room()
	h.roomsMu.Lock()
	if clients, ok := h.rooms[roomID]; ok {
		if clients[client] {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.roomsMu.Unlock()
	close(client.send)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.roomService.Disconnect(ctx, client.handle); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"participant_id": client.participantID,
			"handle":         client.handle,
		}).Warn("Hub: failed to persist disconnect")
	}
}

// handleInbound 解析并分发一条客户端协议消息。
func (h *Hub) handleInbound(client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		client.sendError("validation", "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 每条消息读一次房间绑定，后续写入 (join/leave) 通过 setRoom 串行化
	roomID := client.room()
	logCtx := logrus.WithFields(logrus.Fields{
		"participant_id": client.participantID,
		"room_id":        roomID,
		"msg_type":       msg.Type,
	})

	var err error
	switch msg.Type {
	case msgJoin:
		var snap *domain.RoomSnapshot
		snap, err = h.roomService.JoinRoom(ctx, client.participantID, msg.DisplayName, msg.RoomCode, msg.GameType, msg.Spectator, client.handle)
		if err == nil {
			h.subscribe(client, snap.RoomID)
			client.sendSnapshot(snap)
		}
	case msgLeave:
		err = h.roomService.LeaveRoom(ctx, client.participantID, roomID, client.handle)
		if err == nil {
			h.roomsMu.Lock()
			if clients, ok := h.rooms[roomID]; ok {
				delete(clients, client)
				if len(clients) == 0 {
					delete(h.rooms, roomID)
				}
			}
			h.roomsMu.Unlock()
			client.setRoom(0)
		}
	case msgUpdateStatus:
		err = h.handleUpdateStatus(ctx, client, roomID, msg)
	case msgHeartbeat:
		err = h.roomService.Heartbeat(ctx, client.handle)
	case msgReady:
		_, err = h.syncEngine.UpdateReady(ctx, client.participantID, roomID, msg.Ready)
	case msgStartGame:
		err = h.lifecycle.StartGame(ctx, roomID, client.participantID)
	case msgReturnAll:
		err = h.lifecycle.ReturnAll(ctx, roomID, client.participantID)
	case msgFinish:
		err = h.lifecycle.FinishRoom(ctx, roomID, client.participantID)
	default:
		client.sendError("validation", "unknown message type: "+msg.Type)
		return
	}

	if err != nil {
		logCtx.WithError(err).Warn("Hub: client message rejected")
		client.sendError(reasonOf(err), err.Error())
	}
}

// handleUpdateStatus 处理客户端自报的状态更新。
// 断连不能由客户端自己上报，它是传输层事实。
func (h *Hub) handleUpdateStatus(ctx context.Context, client *Client, roomID uint, msg ClientMessage) error {
	logical, err := domain.ParseLogicalStatus(msg.Status)
	if err != nil {
		return service.ErrValidation
	}
	if logical == domain.LogicalDisconnected {
		return service.ErrValidation
	}
	_, err = h.syncEngine.UpdateStatus(ctx, client.participantID, roomID, logical, msg.Metadata)
	return err
}

// reasonOf 把服务层错误映射为机器可读的拒绝原因。
func reasonOf(err error) string {
	switch {
	case errors.Is(err, service.ErrRoomFull):
		return "room_full"
	case errors.Is(err, service.ErrWrongGameType):
		return "wrong_game_type"
	case errors.Is(err, service.ErrRoomNotJoinable):
		return "room_not_joinable"
	case errors.Is(err, service.ErrNotHost):
		return "not_host"
	case errors.Is(err, service.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrConflict):
		return "conflict"
	case errors.Is(err, service.ErrValidation):
		return "validation"
	case errors.Is(err, service.ErrRateLimit):
		return "rate_limit"
	default:
		return "internal"
	}
}
