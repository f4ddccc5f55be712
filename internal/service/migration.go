package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// HostMigrationCoordinator 检测房主丢失并执行原子的房主重分配。
//
// 房主断连时不立刻迁移: 先启动一个以 (roomID, participantID) 为键、
// 可取消的宽限计时器；同一参与者在计时器到期前重连则取消。
// 到期后重新确认断连状态，再按确定性规则 (currently connected、
// 非旁观者中 joined_at 最早) 选出继任者并完成角色交换。
type HostMigrationCoordinator struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	lifecycle   *LifecycleService

	grace time.Duration

	mu     sync.Mutex
	timers map[membershipKey]*time.Timer

	// migrated 供测试钩子观察迁移完成，可为 nil
	onMigrated func(roomID uint, newHostID uint)
}

// NewHostMigrationCoordinator 创建迁移协调器。
// grace 是房主断连后的迁移宽限时长。
func NewHostMigrationCoordinator(rooms repository.RoomRepository, memberships repository.MembershipRepository, lifecycle *LifecycleService, grace time.Duration) *HostMigrationCoordinator {
	if rooms == nil || memberships == nil {
		panic("repositories cannot be nil for HostMigrationCoordinator")
	}
	if lifecycle == nil {
		panic("LifecycleService cannot be nil for HostMigrationCoordinator")
	}
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &HostMigrationCoordinator{
		rooms:       rooms,
		memberships: memberships,
		lifecycle:   lifecycle,
		grace:       grace,
		timers:      make(map[membershipKey]*time.Timer),
	}
}

// OnHostDisconnected 实现 HostWatcher: 启动迁移宽限计时器。
// 同一个键已有待定计时器时不重复启动。
func (c *HostMigrationCoordinator) OnHostDisconnected(roomID, participantID uint) {
	key := membershipKey{roomID: roomID, participantID: participantID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, pending := c.timers[key]; pending {
		return
	}
	c.timers[key] = time.AfterFunc(c.grace, func() {
		c.expire(roomID, participantID)
	})
	logrus.WithFields(logrus.Fields{
		"room_id":        roomID,
		"participant_id": participantID,
		"grace":          c.grace,
	}).Info("Migration: host disconnect detected, grace timer started")
}

// OnParticipantReconnected 实现 HostWatcher: 重连取消待定的迁移计时器。
// 取消恰好一次，对重复取消幂等。
func (c *HostMigrationCoordinator) OnParticipantReconnected(roomID, participantID uint) {
	key := membershipKey{roomID: roomID, participantID: participantID}
	c.mu.Lock()
	timer, pending := c.timers[key]
	if pending {
		delete(c.timers, key)
	}
	c.mu.Unlock()
	if pending {
		timer.Stop()
		logrus.WithFields(logrus.Fields{
			"room_id":        roomID,
			"participant_id": participantID,
		}).Info("Migration: host reconnected within grace, timer cancelled")
	}
}

// PendingFor 返回 (roomID, participantID) 是否有待定的迁移计时器。
func (c *HostMigrationCoordinator) PendingFor(roomID, participantID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, pending := c.timers[membershipKey{roomID: roomID, participantID: participantID}]
	return pending
}

// Stop 停止全部待定计时器 (进程关闭时调用)。
func (c *HostMigrationCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, timer := range c.timers {
		timer.Stop()
		delete(c.timers, key)
	}
}

// expire 在计时器到期后运行: 重新确认断连状态后执行迁移。
func (c *HostMigrationCoordinator) expire(roomID, participantID uint) {
	key := membershipKey{roomID: roomID, participantID: participantID}
	c.mu.Lock()
	if _, pending := c.timers[key]; !pending {
		// 已被重连取消，计时器触发和取消之间的竞态
		c.mu.Unlock()
		return
	}
	delete(c.timers, key)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":        roomID,
		"participant_id": participantID,
	})

	// 到期后重新检查: 成员必须仍然断连
	m, err := c.memberships.FindByRoomAndParticipant(ctx, roomID, participantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Migration: failed to re-check membership on expiry")
		}
		// 成员已被删除 (显式离开路径已处理继任)，不再迁移
		if errors.Is(err, repository.ErrNotFound) {
			if err := c.MigrateNow(ctx, roomID, participantID); err != nil {
				logCtx.WithError(err).Warn("Migration: post-leave migration failed")
			}
		}
		return
	}
	if m.Connected {
		logCtx.Debug("Migration: participant reconnected before expiry check, skipping")
		return
	}

	if err := c.MigrateNow(ctx, roomID, participantID); err != nil {
		logCtx.WithError(err).Warn("Migration: migration on grace expiry failed")
	}
}

// MigrateNow 立刻执行房主重分配 (宽限到期和房主显式离开共用)。
// oldHostID 是被替换的房主；若房间当前房主已不是它，不做任何事。
// 没有合格继任者时房间进入无主状态，等待 abandoned 转换。
func (c *HostMigrationCoordinator) MigrateNow(ctx context.Context, roomID, oldHostID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"old_host_id": oldHostID,
	})

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		room, err := c.rooms.FindByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil // 房间已清理
			}
			return err
		}
		if room.Status.IsTerminal() {
			return nil
		}
		if room.HostID == nil || *room.HostID != oldHostID {
			return nil // 其他路径已经完成迁移
		}

		members, err := c.memberships.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}

		// 确定性继任: currently connected、非旁观者中 joined_at 最早
		// (ListByRoom 已按 joined_at 升序返回)
		var successor *domain.Membership
		for i := range members {
			cand := &members[i]
			if cand.ParticipantID == oldHostID || !cand.Connected || cand.Role == domain.RoleSpectator {
				continue
			}
			successor = cand
			break
		}

		if successor == nil {
			// 无合格继任者: 房间进入无主状态，由 abandoned 转换收尾
			room.HostID = nil
			err = c.rooms.UpdateVersioned(ctx, room, room.Version)
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}
			logCtx.Info("Migration: no eligible successor, room left hostless")
			_ = c.lifecycle.BroadcastRoom(ctx, roomID)
			return nil
		}

		// 角色交换: 旧房主 (如果还在) 降级为 player，继任者升级为 host，
		// 两笔都是条件写入，任意一笔版本冲突都整体重试
		if old := findMembership(members, oldHostID); old != nil && old.Role == domain.RoleHost {
			old.Role = domain.RolePlayer
			err = c.memberships.UpdateVersioned(ctx, old, old.Version)
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}
		}

		successor.Role = domain.RoleHost
		err = c.memberships.UpdateVersioned(ctx, successor, successor.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}

		newHostID := successor.ParticipantID
		room.HostID = &newHostID
		err = c.rooms.UpdateVersioned(ctx, room, room.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}

		c.lifecycle.AppendHostMigration(ctx, room)
		_ = c.lifecycle.BroadcastRoom(ctx, roomID)
		logCtx.WithField("new_host_id", newHostID).Info("Migration: host reassigned")
		if c.onMigrated != nil {
			c.onMigrated(roomID, newHostID)
		}
		return nil
	}

	return ErrConflict
}

func findMembership(members []domain.Membership, participantID uint) *domain.Membership {
	for i := range members {
		if members[i].ParticipantID == participantID {
			return &members[i]
		}
	}
	return nil
}
