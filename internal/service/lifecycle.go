package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// Broadcaster 把权威房间快照发布给所有订阅该房间的连接。
// 由 WebSocket Hub 实现，bootstrap 时注入。
type Broadcaster interface {
	PublishRoomSnapshot(snapshot domain.RoomSnapshot)
}

// LifecycleService 拥有房间状态枚举及其转换规则 (房间生命周期状态机)。
// 每次成功的成员写入之后由同步引擎调用它的推导钩子；
// 每个状态转换都会追加一条不可变的 room_events 审计记录。
type LifecycleService struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	events      repository.RoomEventRepository

	broadcaster Broadcaster // bootstrap 注入 (Hub)，允许 nil
	graceWindow time.Duration
	now         func() time.Time
}

// NewLifecycleService 创建生命周期状态机服务。
// graceWindow 是进入大厅返回路径时设置的宽限窗口时长。
func NewLifecycleService(rooms repository.RoomRepository, memberships repository.MembershipRepository, events repository.RoomEventRepository, graceWindow time.Duration) *LifecycleService {
	if rooms == nil || memberships == nil || events == nil {
		panic("repositories cannot be nil for LifecycleService")
	}
	if graceWindow <= 0 {
		graceWindow = 30 * time.Second
	}
	return &LifecycleService{
		rooms:       rooms,
		memberships: memberships,
		events:      events,
		graceWindow: graceWindow,
		now:         time.Now,
	}
}

// SetBroadcaster 注入广播层。必须在 Hub 构造完成后调用。
func (s *LifecycleService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// WithStores 返回绑定到事务仓库的副本 (批量上报路径使用)。
func (s *LifecycleService) WithStores(stores repository.Stores) *LifecycleService {
	return &LifecycleService{
		rooms:       stores.Rooms,
		memberships: stores.Memberships,
		events:      stores.Events,
		broadcaster: s.broadcaster,
		graceWindow: s.graceWindow,
		now:         s.now,
	}
}

// AfterMembershipWrite 是同步引擎每次成功写入后的推导钩子。
// 它根据最新的成员集合推导房间级转换，然后无条件广播完整快照。
//
// 空房间只有一条路径: 连接成员数为 0 时转换到 abandoned ——
// 无论是传输断连还是显式离开检测到的，终态标签都是同一个。
func (s *LifecycleService) AfterMembershipWrite(ctx context.Context, roomID uint, trigger domain.LogicalStatus) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // 房间已被 Reaper 清理，视为已收敛
		}
		return fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
	}
	members, err := s.memberships.ListByRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: list memberships: %v", ErrTransientStorage, err)
	}

	connected := 0
	inGame := 0
	for i := range members {
		if members[i].Connected {
			connected++
		}
		if members[i].InGame {
			inGame++
		}
	}

	switch {
	case connected == 0 && !room.Status.IsTerminal():
		if err := s.transition(ctx, room, domain.StatusAbandoned, domain.CauseEmptyRoom); err != nil {
			return err
		}
	case trigger == domain.LogicalReturnedToLobby && inGame == 0 &&
		(room.Status == domain.StatusInGame || room.Status == domain.StatusReturning):
		// 外部游戏上报全员返回: 进入大厅并设置宽限窗口
		if err := s.transition(ctx, room, domain.StatusLobby, domain.CauseAllReturned); err != nil {
			return err
		}
	}

	s.publish(ctx, room.ID)
	return nil
}

// StartGame 处理房主发起的游戏开始: lobby → in_game。
// 要求操作者持有 host 角色，且房间容量约束满足。
func (s *LifecycleService) StartGame(ctx context.Context, roomID, actorID uint) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.requireHost(room, actorID); err != nil {
		return err
	}

	members, err := s.memberships.ListByRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: list memberships: %v", ErrTransientStorage, err)
	}
	players := 0
	for i := range members {
		if members[i].Connected && members[i].Role != domain.RoleSpectator {
			players++
		}
	}
	if players == 0 {
		return fmt.Errorf("%w: cannot start a game with no connected players", ErrValidation)
	}
	if players > room.Capacity {
		return ErrRoomFull
	}

	if err := s.transition(ctx, room, domain.StatusInGame, domain.CauseHostStart); err != nil {
		return err
	}
	s.publish(ctx, room.ID)
	return nil
}

// ReturnAll 处理房主发起的全员返回: in_game → returning。
// 进入时设置宽限窗口，掉队成员陆续上报 returned_to_lobby 后
// 由 AfterMembershipWrite 完成 returning → lobby。
func (s *LifecycleService) ReturnAll(ctx context.Context, roomID, actorID uint) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.requireHost(room, actorID); err != nil {
		return err
	}
	if err := s.transition(ctx, room, domain.StatusReturning, domain.CauseHostReturnAll); err != nil {
		return err
	}
	s.publish(ctx, room.ID)
	return nil
}

// FinishRoom 处理房主/游戏的显式关闭: lobby/in_game → finished。
func (s *LifecycleService) FinishRoom(ctx context.Context, roomID, actorID uint) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.requireHost(room, actorID); err != nil {
		return err
	}
	if err := s.transition(ctx, room, domain.StatusFinished, domain.CauseHostClose); err != nil {
		return err
	}
	s.publish(ctx, room.ID)
	return nil
}

// AppendHostMigration 追加一条房主迁移审计记录 (状态不变，old == new)。
func (s *LifecycleService) AppendHostMigration(ctx context.Context, room *domain.Room) {
	event := &domain.RoomEvent{
		RoomID:    room.ID,
		OldStatus: room.Status,
		NewStatus: room.Status,
		Cause:     domain.CauseHostMigration,
		At:        s.now(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("Lifecycle: failed to append host migration event")
	}
}

// BroadcastRoom 构造并发布房间的权威全量快照。
func (s *LifecycleService) BroadcastRoom(ctx context.Context, roomID uint) error {
	s.publish(ctx, roomID)
	return nil
}

// --- 私有辅助函数 ---

func (s *LifecycleService) loadRoom(ctx context.Context, roomID uint) (*domain.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
		}
		return nil, fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
	}
	return room, nil
}

func (s *LifecycleService) requireHost(room *domain.Room, actorID uint) error {
	if room.HostID == nil || *room.HostID != actorID {
		return ErrNotHost
	}
	return nil
}

// transition 执行一次状态机转换: 校验转换表、应用元数据副作用、
// 乐观并发写入房间、追加审计事件。
func (s *LifecycleService) transition(ctx context.Context, room *domain.Room, to domain.RoomStatus, cause string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": room.ID,
		"from":    room.Status,
		"to":      to,
		"cause":   cause,
	})

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		from := room.Status
		if from == to {
			return nil // 已经收敛，幂等返回
		}
		if !domain.CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
		}

		now := s.now()
		room.Status = to
		room.LastActive = now
		switch to {
		case domain.StatusLobby, domain.StatusReturning:
			// 大厅返回路径: 宽限窗口保护转换途中的成员不被断连噪声打断
			if err := room.SetGraceWindow(now, s.graceWindow); err != nil {
				logCtx.WithError(err).Warn("Lifecycle: failed to set grace window in room metadata")
			}
		case domain.StatusInGame:
			if err := room.ClearGraceWindow(); err != nil {
				logCtx.WithError(err).Warn("Lifecycle: failed to clear grace window in room metadata")
			}
		}

		err := s.rooms.UpdateVersioned(ctx, room, room.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			fresh, ferr := s.rooms.FindByID(ctx, room.ID)
			if ferr != nil {
				return fmt.Errorf("%w: re-read room after conflict: %v", ErrTransientStorage, ferr)
			}
			*room = *fresh
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: write room: %v", ErrTransientStorage, err)
		}

		event := &domain.RoomEvent{
			RoomID:    room.ID,
			OldStatus: from,
			NewStatus: to,
			Cause:     cause,
			At:        now,
		}
		if err := s.events.Append(ctx, event); err != nil {
			// 审计追加失败不回滚已生效的转换
			logCtx.WithError(err).Error("Lifecycle: failed to append room event")
		}

		logCtx.Info("Lifecycle: room status transitioned")
		return nil
	}

	return fmt.Errorf("%w: room %d transition to %s", ErrConflict, room.ID, to)
}

// publish 加载最新状态并广播完整快照 (永远是全量，绝不是增量)。
func (s *LifecycleService) publish(ctx context.Context, roomID uint) {
	if s.broadcaster == nil {
		return
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Lifecycle: failed to load room for broadcast")
		return
	}
	members, err := s.memberships.ListByRoom(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Lifecycle: failed to load memberships for broadcast")
		return
	}
	s.broadcaster.PublishRoomSnapshot(domain.BuildRoomSnapshot(room, members))
}
