package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
)

// Client 是 Hub 与单个 WebSocket 连接之间的中间人。
// handle 是本连接的进程本地句柄，同一参与者的多个连接各有一个。
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	handle        string
	participantID uint

	// roomID 由订阅/退订路径写入，inbound 处理 goroutine 并发读取
	roomMu sync.RWMutex
	roomID uint

	// 发往对端的消息缓冲通道
	send chan []byte
}

// room 返回客户端当前订阅的房间 ID，未订阅时为 0。
func (c *Client) room() uint {
	c.roomMu.RLock()
	defer c.roomMu.RUnlock()
	return c.roomID
}

func (c *Client) setRoom(id uint) {
	c.roomMu.Lock()
	c.roomID = id
	c.roomMu.Unlock()
}

// NewClient 创建客户端并向 Hub 注册。
func NewClient(hub *Hub, conn *websocket.Conn, participantID uint) *Client {
	client := &Client{
		hub:           hub,
		conn:          conn,
		handle:        uuid.NewString(),
		participantID: participantID,
		send:          make(chan []byte, 256),
	}
	hub.QueueMessage(hubMessage{kind: "register", client: client})
	return client
}

// Handle 返回本连接的进程本地句柄。
func (c *Client) Handle() string {
	return c.handle
}

// ReadPump 把来自 WebSocket 连接的消息泵入 Hub。
// 每个连接运行一个 goroutine，保证最多只有一个读者。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.QueueMessage(hubMessage{kind: "unregister", client: c})
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("participant_id", c.participantID).Warn("Client: unexpected close")
			}
			break
		}
		if !c.hub.QueueMessage(hubMessage{kind: "inbound", client: c, rawData: message}) {
			logrus.WithField("participant_id", c.participantID).Warn("Client: hub channel full, message dropped")
		}
	}
}

// WritePump 把 send 通道里的消息泵到 WebSocket 连接，并周期性发送 ping。
// 每个连接运行一个 goroutine，保证最多只有一个写者。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendSnapshot 只发给本客户端一份快照 (join 成功后的初始快照)。
func (c *Client) sendSnapshot(snap *domain.RoomSnapshot) {
	payload, err := json.Marshal(ServerMessage{Type: "room_snapshot", Snapshot: snap})
	if err != nil {
		logrus.WithError(err).Error("Client: failed to marshal snapshot")
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// sendError 发送一条带机器可读原因的拒绝消息。
func (c *Client) sendError(reason, detail string) {
	payload, err := json.Marshal(ServerMessage{Type: "error", Reason: reason, Error: detail})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
