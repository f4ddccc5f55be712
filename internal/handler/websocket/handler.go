package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/hub"
	"gamebuddies-server/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, roomService *service.RoomService) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		hub:         h,
		roomService: roomService,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/room/:code (房间的加入在连接建立后通过 join 消息完成)
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithFields(logrus.Fields{})

	// 1. 获取认证参与者 ID (由 Auth 中间件设置)
	participantIDAny, exists := c.Get("participant_id")
	if !exists {
		logCtx.Warn("WS Handler: Participant ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Participant not authenticated"})
		return
	}
	participantID, ok := participantIDAny.(uint)
	if !ok {
		logCtx.Error("WS Handler: Participant ID in context is not uint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	logCtx = logCtx.WithField("participant_id", participantID)

	// 2. 预检房间代码 (加入本身通过协议 join 消息完成，这里仅拒绝明显无效的连接)
	code := c.Param("code")
	if code != "" {
		if _, err := h.roomService.FindRoomByCode(c.Request.Context(), code); err != nil {
			logCtx.WithError(err).WithField("room_code", code).Warn("WS Handler: Room not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
	}

	// 3. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，所以这里只需要记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 4. 创建 Client 并启动读写 goroutine
	client := hub.NewClient(h.hub, conn, participantID)
	go client.WritePump()
	go client.ReadPump()

	logCtx.WithField("handle", client.Handle()).Info("WS Handler: Client read/write pumps started")
}
