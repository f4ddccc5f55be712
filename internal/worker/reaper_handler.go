package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/registry"
	"gamebuddies-server/internal/repository"
	"gamebuddies-server/internal/service"
	"gamebuddies-server/internal/tasks"
)

// 保留期清扫的深夜加速窗口 (本地时间)
const (
	aggressiveWindowStart = 3 // 03:00
	aggressiveWindowEnd   = 6 // 06:00
)

// 缺省值，payload 未给出时使用
const (
	defaultMaxIdle       = 90 * time.Second
	defaultRetention     = 24 * time.Hour
	defaultIdleRetention = 72 * time.Hour
)

// ReaperReconcileHandler 处理对账清扫任务。
// 它把两类"嘴上说在线、实际上已死"的成员落为 disconnected:
// 连接注册表里超时未活动的句柄，和存储里心跳陈旧的 connected 成员。
// 所有落盘都经过同步引擎，清扫因此是幂等的 —— 第二次运行不产生写入。
type ReaperReconcileHandler struct {
	registry    *registry.Registry
	syncEngine  *service.SyncEngine
	memberships repository.MembershipRepository
	now         func() time.Time
}

// NewReaperReconcileHandler 创建 Handler 实例
func NewReaperReconcileHandler(reg *registry.Registry, syncEngine *service.SyncEngine, memberships repository.MembershipRepository) *ReaperReconcileHandler {
	if reg == nil {
		panic("Registry cannot be nil for ReaperReconcileHandler")
	}
	if syncEngine == nil {
		panic("SyncEngine cannot be nil for ReaperReconcileHandler")
	}
	if memberships == nil {
		panic("MembershipRepository cannot be nil for ReaperReconcileHandler")
	}
	return &ReaperReconcileHandler{
		registry:    reg,
		syncEngine:  syncEngine,
		memberships: memberships,
		now:         time.Now,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ReaperReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"component": "reaper",
	})

	var payload tasks.ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal reconcile payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	maxIdle := payload.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}

	writes := 0

	// 1. 注册表一侧: 清出超时句柄，并把断连落盘
	swept := h.registry.SweepIdle(maxIdle)
	for _, entry := range swept {
		if _, err := h.syncEngine.UpdateStatus(ctx, entry.ParticipantID, entry.RoomID, domain.LogicalDisconnected, ""); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				continue // 成员已被删除，注册表项只是残影
			}
			logCtx.WithError(err).WithFields(logrus.Fields{
				"participant_id": entry.ParticipantID,
				"room_id":        entry.RoomID,
			}).Warn("Reaper: failed to persist swept disconnect")
			continue
		}
		writes++
	}

	// 2. 存储一侧: 心跳陈旧但仍标记 connected 的成员
	// (覆盖注册表丢失状态后重启的情况)
	cutoff := h.now().Add(-maxIdle)
	stale, err := h.memberships.FindStaleConnected(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Reaper: failed to query stale memberships")
		return fmt.Errorf("stale membership query failed: %w", err)
	}
	for _, m := range stale {
		if _, err := h.syncEngine.UpdateStatus(ctx, m.ParticipantID, m.RoomID, domain.LogicalDisconnected, ""); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				continue
			}
			logCtx.WithError(err).WithFields(logrus.Fields{
				"participant_id": m.ParticipantID,
				"room_id":        m.RoomID,
			}).Warn("Reaper: failed to persist stale disconnect")
			continue
		}
		writes++
	}

	logCtx.WithFields(logrus.Fields{
		"swept_handles": len(swept),
		"stale_members": len(stale),
		"writes":        writes,
	}).Info("Reaper: reconcile sweep completed")
	return nil
}

// ReaperRetentionHandler 处理保留期清扫任务。
// 终态房间在保留期过后删除；非终态但长期闲置且无人连接的房间同样删除。
// 深夜窗口 (03:00-06:00) 内保留期减半，加速清理积压。
type ReaperRetentionHandler struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	now         func() time.Time
}

// NewReaperRetentionHandler 创建 Handler 实例
func NewReaperRetentionHandler(rooms repository.RoomRepository, memberships repository.MembershipRepository) *ReaperRetentionHandler {
	if rooms == nil {
		panic("RoomRepository cannot be nil for ReaperRetentionHandler")
	}
	if memberships == nil {
		panic("MembershipRepository cannot be nil for ReaperRetentionHandler")
	}
	return &ReaperRetentionHandler{
		rooms:       rooms,
		memberships: memberships,
		now:         time.Now,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ReaperRetentionHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"component": "reaper",
	})

	var payload tasks.RetentionPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal retention payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	idleRetention := payload.IdleRetention
	if idleRetention <= 0 {
		idleRetention = defaultIdleRetention
	}

	now := h.now()
	if hour := now.Hour(); hour >= aggressiveWindowStart && hour < aggressiveWindowEnd {
		retention /= 2
		idleRetention /= 2
		logCtx = logCtx.WithField("aggressive", true)
	}

	deleted := 0

	// 1. 终态房间: 保留期过后且无人连接时整房删除
	terminal, err := h.rooms.FindTerminalOlderThan(ctx, now.Add(-retention))
	if err != nil {
		logCtx.WithError(err).Error("Reaper: failed to query terminal rooms")
		return fmt.Errorf("terminal room query failed: %w", err)
	}
	for i := range terminal {
		room := &terminal[i]
		connected, err := h.memberships.CountConnected(ctx, room.ID)
		if err != nil {
			logCtx.WithError(err).WithField("room_id", room.ID).Warn("Reaper: failed to count connected members")
			continue
		}
		if connected > 0 {
			// 终态房间也可能还有人挂在上面看结算，等他们散了再删
			continue
		}
		if h.deleteRoom(ctx, logCtx, room) {
			deleted++
		}
	}

	// 2. 闲置房间: 非终态但 last_active 早于闲置保留期且无人连接
	idle, err := h.rooms.FindIdleSince(ctx, now.Add(-idleRetention))
	if err != nil {
		logCtx.WithError(err).Error("Reaper: failed to query idle rooms")
		return fmt.Errorf("idle room query failed: %w", err)
	}
	for i := range idle {
		room := &idle[i]
		connected, err := h.memberships.CountConnected(ctx, room.ID)
		if err != nil {
			logCtx.WithError(err).WithField("room_id", room.ID).Warn("Reaper: failed to count connected members")
			continue
		}
		if connected > 0 {
			// 房间还有活人，last_active 只是没被碰
			continue
		}
		if h.deleteRoom(ctx, logCtx, room) {
			deleted++
		}
	}

	logCtx.WithFields(logrus.Fields{
		"terminal_candidates": len(terminal),
		"idle_candidates":     len(idle),
		"deleted":             deleted,
	}).Info("Reaper: retention sweep completed")
	return nil
}

// deleteRoom 删除一个房间及其全部成员行。返回是否删除成功。
func (h *ReaperRetentionHandler) deleteRoom(ctx context.Context, logCtx *logrus.Entry, room *domain.Room) bool {
	if err := h.memberships.DeleteByRoom(ctx, room.ID); err != nil {
		logCtx.WithError(err).WithField("room_id", room.ID).Warn("Reaper: failed to delete memberships")
		return false
	}
	if err := h.rooms.Delete(ctx, room.ID); err != nil {
		logCtx.WithError(err).WithField("room_id", room.ID).Warn("Reaper: failed to delete room")
		return false
	}
	logCtx.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"room_code": room.Code,
		"status":    room.Status,
	}).Info("Reaper: room deleted")
	return true
}
