package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// HostWatcher 接收成员连接状态变化通知，由房主迁移协调器实现。
// 同步引擎只负责通知，不关心迁移逻辑本身。
type HostWatcher interface {
	// OnHostDisconnected 在持有 host 角色的成员被持久化为断连后调用。
	OnHostDisconnected(roomID, participantID uint)
	// OnParticipantReconnected 在成员从断连恢复为连接后调用。
	OnParticipantReconnected(roomID, participantID uint)
}

// maxWriteAttempts 是乐观并发写入的最大尝试次数，超过后向调用方暴露 ErrConflict。
const maxWriteAttempts = 3

// membershipKey 标识一条成员记录
type membershipKey struct {
	roomID        uint
	participantID uint
}

// syncClock 保存心跳合并所需的内存时钟。
// 独立成指针字段，使绑定事务仓库的引擎副本仍共享同一份时钟。
type syncClock struct {
	mu        sync.Mutex
	lastSeen  map[membershipKey]time.Time // 每次调用都更新，与写频率无关地约束陈旧度
	lastWrite map[membershipKey]time.Time // 上次真正落盘的时间，约束心跳写频率
}

func newSyncClock() *syncClock {
	return &syncClock{
		lastSeen:  make(map[membershipKey]time.Time),
		lastWrite: make(map[membershipKey]time.Time),
	}
}

func (c *syncClock) touch(key membershipKey, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen[key] = now
}

func (c *syncClock) markWrite(key membershipKey, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastWrite[key] = now
}

func (c *syncClock) sinceLastWrite(key membershipKey, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastWrite[key]
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(last)
}

func (c *syncClock) lastSeenAt(key membershipKey) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastSeen[key]
	return t, ok
}

func (c *syncClock) forget(key membershipKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastSeen, key)
	delete(c.lastWrite, key)
}

// SyncEngine 是成员状态的唯一写路径 (状态同步引擎)。
// 所有来源 —— 传输层连接、外部状态上报、Reaper、迁移协调器 ——
// 的成员状态变更都经过这里的乐观并发循环。
type SyncEngine struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	lifecycle   *LifecycleService

	hostWatcher HostWatcher // 可选，bootstrap 时注入
	clock       *syncClock

	coalesceInterval time.Duration
	now              func() time.Time
}

// NewSyncEngine 创建状态同步引擎。
// coalesceInterval 是心跳合并窗口：字段不变的 connected/in_game 写入
// 在窗口内只更新内存时钟，不落盘。
func NewSyncEngine(rooms repository.RoomRepository, memberships repository.MembershipRepository, lifecycle *LifecycleService, coalesceInterval time.Duration) *SyncEngine {
	if rooms == nil || memberships == nil {
		panic("repositories cannot be nil for SyncEngine")
	}
	if lifecycle == nil {
		panic("LifecycleService cannot be nil for SyncEngine")
	}
	if coalesceInterval <= 0 {
		coalesceInterval = 10 * time.Second
	}
	return &SyncEngine{
		rooms:            rooms,
		memberships:      memberships,
		lifecycle:        lifecycle,
		clock:            newSyncClock(),
		coalesceInterval: coalesceInterval,
		now:              time.Now,
	}
}

// SetHostWatcher 注入房主迁移协调器。允许为 nil (测试场景)。
func (e *SyncEngine) SetHostWatcher(w HostWatcher) {
	e.hostWatcher = w
}

// WithStores 返回绑定到事务仓库的引擎副本。
// 副本共享心跳时钟和 HostWatcher，批量上报路径借此在单个事务内
// 复用同一条写路径。
func (e *SyncEngine) WithStores(stores repository.Stores) *SyncEngine {
	return &SyncEngine{
		rooms:            stores.Rooms,
		memberships:      stores.Memberships,
		lifecycle:        e.lifecycle.WithStores(stores),
		hostWatcher:      e.hostWatcher,
		clock:            e.clock,
		coalesceInterval: e.coalesceInterval,
		now:              e.now,
	}
}

// UpdateStatus 将逻辑状态应用到 (participantID, roomID) 的成员记录上。
//
// 算法: 读取当前成员与版本号；若房间宽限窗口激活且目标是 disconnected，
// 或成员位于游戏中且目标是传输层状态 (connected/disconnected)，
// no-op 返回未变的快照；否则由全映射计算新字段，按版本条件写入；
// 版本不匹配时用新读到的版本重试，最多 maxWriteAttempts 次，之后返回 ErrConflict。
func (e *SyncEngine) UpdateStatus(ctx context.Context, participantID, roomID uint, logical domain.LogicalStatus, metadata string) (*domain.MembershipSnapshot, error) {
	if !logical.Valid() {
		return nil, fmt.Errorf("%w: unknown logical status %q", ErrValidation, logical)
	}

	key := membershipKey{roomID: roomID, participantID: participantID}
	now := e.now()
	// 内存 "最后所见" 时钟无条件更新，陈旧度约束与写频率无关
	e.clock.touch(key, now)

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":        roomID,
		"participant_id": participantID,
		"logical_status": logical,
	})

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		m, err := e.memberships.FindByRoomAndParticipant(ctx, roomID, participantID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: membership (room %d, participant %d)", ErrNotFound, roomID, participantID)
			}
			return nil, fmt.Errorf("%w: read membership: %v", ErrTransientStorage, err)
		}

		room, err := e.rooms.FindByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
			}
			return nil, fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
		}

		// 宽限窗口激活期间抑制断连写入: 大厅返回途中的传输层抖动不落盘
		if logical == domain.LogicalDisconnected && room.GraceActive(now) {
			logCtx.Debug("Sync: disconnect suppressed by active grace window")
			snap := domain.SnapshotOf(m)
			return &snap, nil
		}

		// 游戏中成员的在场状态由外部上报独占: 大厅连接本来就已断开 (Handle 为空)，
		// 传输层事实 (connected/disconnected) 不得覆盖 in_game 三元组
		if m.Location == domain.LocationGame &&
			(logical == domain.LogicalConnected || logical == domain.LogicalDisconnected) {
			logCtx.Debug("Sync: transport status ignored for in-game membership")
			snap := domain.SnapshotOf(m)
			return &snap, nil
		}

		// 心跳合并: 字段不变的高频 connected/in_game 写入在窗口内跳过落盘
		if (logical == domain.LogicalConnected || logical == domain.LogicalInGame) &&
			m.StatusEquals(logical) && metadata == "" &&
			e.clock.sinceLastWrite(key, now) < e.coalesceInterval {
			snap := domain.SnapshotOf(m)
			return &snap, nil
		}

		wasConnected := m.Connected
		expected := m.Version

		m.ApplyLogicalStatus(logical)
		m.LastHeartbeat = now
		if metadata != "" {
			m.GameData = metadata
		}

		err = e.memberships.UpdateVersioned(ctx, m, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			logCtx.WithField("attempt", attempt+1).Debug("Sync: version conflict, retrying with fresh read")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: write membership: %v", ErrTransientStorage, err)
		}

		e.clock.markWrite(key, now)
		e.notifyHostWatcher(room, m, logical, wasConnected)

		if err := e.lifecycle.AfterMembershipWrite(ctx, roomID, logical); err != nil {
			// 房间级推导失败不回滚已成功的成员写入，留给下一次写入或 Reaper 收敛
			logCtx.WithError(err).Warn("Sync: post-write lifecycle evaluation failed")
		}

		snap := domain.SnapshotOf(m)
		return &snap, nil
	}

	logCtx.Warn("Sync: optimistic write attempts exhausted")
	return nil, fmt.Errorf("%w: membership (room %d, participant %d) after %d attempts", ErrConflict, roomID, participantID, maxWriteAttempts)
}

// Rejoin 把已有成员重新绑定到一个新的传输连接:
// 应用 connected 三元组、写入连接句柄、可选地刷新显示名。
// 与 UpdateStatus 共用乐观并发循环和迁移计时器取消通知。
func (e *SyncEngine) Rejoin(ctx context.Context, participantID, roomID uint, handle, displayName string) (*domain.MembershipSnapshot, error) {
	key := membershipKey{roomID: roomID, participantID: participantID}
	now := e.now()
	e.clock.touch(key, now)

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		m, err := e.memberships.FindByRoomAndParticipant(ctx, roomID, participantID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: membership (room %d, participant %d)", ErrNotFound, roomID, participantID)
			}
			return nil, fmt.Errorf("%w: read membership: %v", ErrTransientStorage, err)
		}
		room, err := e.rooms.FindByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
			}
			return nil, fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
		}

		wasConnected := m.Connected
		expected := m.Version

		m.ApplyLogicalStatus(domain.LogicalConnected)
		m.Handle = &handle
		m.LastHeartbeat = now
		if displayName != "" {
			m.DisplayName = displayName
		}

		err = e.memberships.UpdateVersioned(ctx, m, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: write membership: %v", ErrTransientStorage, err)
		}

		e.clock.markWrite(key, now)
		e.notifyHostWatcher(room, m, domain.LogicalConnected, wasConnected)

		if err := e.lifecycle.AfterMembershipWrite(ctx, roomID, domain.LogicalConnected); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"room_id":        roomID,
				"participant_id": participantID,
			}).Warn("Sync: post-rejoin lifecycle evaluation failed")
		}

		snap := domain.SnapshotOf(m)
		return &snap, nil
	}
	return nil, fmt.Errorf("%w: rejoin (room %d, participant %d)", ErrConflict, roomID, participantID)
}

// UpdateReady 更新成员的准备标志，走同一条乐观并发写路径。
func (e *SyncEngine) UpdateReady(ctx context.Context, participantID, roomID uint, ready bool) (*domain.MembershipSnapshot, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		m, err := e.memberships.FindByRoomAndParticipant(ctx, roomID, participantID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: membership (room %d, participant %d)", ErrNotFound, roomID, participantID)
			}
			return nil, fmt.Errorf("%w: read membership: %v", ErrTransientStorage, err)
		}
		if m.Ready == ready {
			snap := domain.SnapshotOf(m)
			return &snap, nil
		}

		expected := m.Version
		m.Ready = ready
		err = e.memberships.UpdateVersioned(ctx, m, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: write membership: %v", ErrTransientStorage, err)
		}

		if err := e.lifecycle.BroadcastRoom(ctx, roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Sync: broadcast after ready update failed")
		}
		snap := domain.SnapshotOf(m)
		return &snap, nil
	}
	return nil, fmt.Errorf("%w: ready flag (room %d, participant %d)", ErrConflict, roomID, participantID)
}

// LastSeen 返回成员最后一次调用同步引擎的内存时钟。
func (e *SyncEngine) LastSeen(roomID, participantID uint) (time.Time, bool) {
	return e.clock.lastSeenAt(membershipKey{roomID: roomID, participantID: participantID})
}

// Forget 清除成员的内存时钟 (显式离开后调用)。
func (e *SyncEngine) Forget(roomID, participantID uint) {
	e.clock.forget(membershipKey{roomID: roomID, participantID: participantID})
}

// notifyHostWatcher 把连接状态变化转发给迁移协调器。
func (e *SyncEngine) notifyHostWatcher(room *domain.Room, m *domain.Membership, logical domain.LogicalStatus, wasConnected bool) {
	if e.hostWatcher == nil {
		return
	}
	if logical == domain.LogicalDisconnected && wasConnected &&
		room.HostID != nil && *room.HostID == m.ParticipantID {
		e.hostWatcher.OnHostDisconnected(room.ID, m.ParticipantID)
	}
	if m.Connected && !wasConnected {
		e.hostWatcher.OnParticipantReconnected(room.ID, m.ParticipantID)
	}
}
