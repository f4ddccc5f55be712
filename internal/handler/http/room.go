package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// participantFromContext 取出 Auth 中间件放入的参与者 ID。
func participantFromContext(c *gin.Context) (uint, bool) {
	idAny, exists := c.Get("participant_id")
	if !exists {
		logrus.Warn("Handler: Participant ID not found in context, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Participant not authenticated"})
		return 0, false
	}
	id, ok := idAny.(uint)
	if !ok {
		logrus.Error("Handler: Participant ID in context is not uint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error processing participant ID"})
		return 0, false
	}
	return id, true
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
	GameType    string `json:"game_type" binding:"required,min=1,max=50"`
	Capacity    int    `json:"capacity" binding:"required,min=2,max=64"`
}

// CreateRoomResponse 定义创建房间成功的响应结构体
type CreateRoomResponse struct {
	Message  string `json:"message"`
	RoomID   uint   `json:"room_id"`
	RoomCode string `json:"room_code"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	participantID, ok := participantFromContext(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("participant_id", participantID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), participantID, req.DisplayName, req.GameType, req.Capacity)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithFields(logrus.Fields{"room_id": room.ID, "room_code": room.Code}).Info("Handler.CreateRoom: Room created successfully")
	c.JSON(http.StatusOK, CreateRoomResponse{
		Message:  "Room created successfully",
		RoomID:   room.ID,
		RoomCode: room.Code,
	})
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	RoomCode    string `json:"room_code" binding:"required,len=6"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
	GameType    string `json:"game_type" binding:"omitempty,max=50"`
	Spectator   bool   `json:"spectator"`
	Handle      string `json:"handle" binding:"omitempty,max=64"`
}

// JoinRoom 处理参与者通过 REST 加入房间的请求。
// 实时连接随后通过 WebSocket join 消息绑定同一个 handle。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	participantID, ok := participantFromContext(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("participant_id", participantID)

	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: room_code and display_name are required"})
		return
	}
	logCtx = logCtx.WithField("room_code", req.RoomCode)

	snapshot, err := h.roomService.JoinRoom(c.Request.Context(), participantID, req.DisplayName, req.RoomCode, req.GameType, req.Spectator, req.Handle)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to join room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("room_id", snapshot.RoomID).Info("Handler.JoinRoom: Participant joined room successfully")
	c.JSON(http.StatusOK, gin.H{
		"message":  "Joined room successfully",
		"snapshot": snapshot,
	})
}

// LeaveRoomRequest 定义离开房间请求的结构体
type LeaveRoomRequest struct {
	RoomID uint   `json:"room_id" binding:"required"`
	Handle string `json:"handle" binding:"omitempty,max=64"`
}

// LeaveRoom 处理参与者显式离开房间的请求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	participantID, ok := participantFromContext(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("participant_id", participantID)

	var req LeaveRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.LeaveRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: room_id is required"})
		return
	}

	if err := h.roomService.LeaveRoom(c.Request.Context(), participantID, req.RoomID, req.Handle); err != nil {
		logCtx.WithError(err).Warn("Handler.LeaveRoom: Failed to leave room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("room_id", req.RoomID).Info("Handler.LeaveRoom: Participant left room")
	c.JSON(http.StatusOK, gin.H{"message": "Left room successfully"})
}

// GetRoom 按房间代码返回当前的权威快照
func (h *RoomHandler) GetRoom(c *gin.Context) {
	if _, ok := participantFromContext(c); !ok {
		return
	}
	code := c.Param("code")

	room, err := h.roomService.FindRoomByCode(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	snapshot, err := h.roomService.Snapshot(c.Request.Context(), room.ID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
