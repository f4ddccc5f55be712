package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/service"
)

// StatusHandler 封装外部游戏进程状态上报的 HTTP 处理逻辑。
// 这些端点不走参与者 JWT，而是由 ServiceKey 中间件用
// X-Service-Key 凭证解析出授权范围放进上下文。
type StatusHandler struct {
	ingress *service.IngressService
}

// NewStatusHandler 创建 StatusHandler 实例
func NewStatusHandler(ingress *service.IngressService) *StatusHandler {
	if ingress == nil {
		panic("IngressService cannot be nil for StatusHandler")
	}
	return &StatusHandler{ingress: ingress}
}

// scopeFromContext 取出 ServiceKey 中间件放入的授权范围。
func scopeFromContext(c *gin.Context) (*service.ServiceScope, bool) {
	scopeAny, exists := c.Get("service_scope")
	if !exists {
		logrus.Warn("Handler.Status: Service scope not found in context, middleware missing?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Service not authenticated"})
		return nil, false
	}
	scope, ok := scopeAny.(*service.ServiceScope)
	if !ok {
		logrus.Error("Handler.Status: Service scope in context has wrong type")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return scope, true
}

// Report 处理单条参与者状态上报 (POST /api/external/status)
func (h *StatusHandler) Report(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}

	var req service.StatusReport
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Status: Invalid report format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	snapshot, err := h.ingress.Apply(c.Request.Context(), scope, req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"service":        scope.ServiceName,
			"room_code":      req.RoomCode,
			"participant_id": req.ParticipantID,
		}).Warn("Handler.Status: Report rejected")
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Status applied",
		"membership": snapshot,
	})
}

// BulkReportRequest 定义批量状态上报请求的结构体
type BulkReportRequest struct {
	RoomCode string              `json:"room_code" binding:"required"`
	Reason   string              `json:"reason" binding:"omitempty,max=100"`
	Entries  []service.BulkEntry `json:"entries" binding:"required,min=1,max=128,dive"`
}

// BulkReport 处理批量状态上报 (POST /api/external/bulk-status)。
// 逐条结果在响应体里返回；存储故障会整批回滚。
func (h *StatusHandler) BulkReport(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}

	var req BulkReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Status: Invalid bulk report format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	result, err := h.ingress.ApplyBulk(c.Request.Context(), scope, req.RoomCode, req.Reason, req.Entries)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"service":   scope.ServiceName,
			"room_code": req.RoomCode,
		}).Warn("Handler.Status: Bulk report rejected")
		HandleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Committed {
		status = http.StatusConflict
	} else if result.Failed > 0 {
		// 部分条目被拒绝，但已接受的条目已提交
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}
