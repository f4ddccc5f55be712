package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/registry"
	"gamebuddies-server/internal/repository"
)

// roomCodePattern 校验 6 位大写字母数字房间码。
var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// joinLockTTL 是加入锁的生存时间，同时充当崩溃兜底清理。
const joinLockTTL = 10 * time.Second

// RoomService 负责房间的创建、加入、离开与连接生命周期入口。
// 所有成员状态写入都委托给同步引擎，本服务只编排。
type RoomService struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	locks       repository.LockRepository
	registry    *registry.Registry
	sync        *SyncEngine
	lifecycle   *LifecycleService
	migration   *HostMigrationCoordinator
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(rooms repository.RoomRepository, memberships repository.MembershipRepository, locks repository.LockRepository, reg *registry.Registry, syncEngine *SyncEngine, lifecycle *LifecycleService, migration *HostMigrationCoordinator) *RoomService {
	if rooms == nil || memberships == nil || locks == nil {
		panic("repositories cannot be nil for RoomService")
	}
	if reg == nil || syncEngine == nil || lifecycle == nil || migration == nil {
		panic("collaborators cannot be nil for RoomService")
	}
	return &RoomService{
		rooms:       rooms,
		memberships: memberships,
		locks:       locks,
		registry:    reg,
		sync:        syncEngine,
		lifecycle:   lifecycle,
		migration:   migration,
	}
}

// CreateRoom 创建一个新房间，创建者成为房主。
// 房主的成员记录在这里创建 (未连接)，随后通过 WebSocket 加入时接管连接。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, displayName, gameType string, capacity int) (*domain.Room, error) {
	logCtx := logrus.WithField("creator_id", creatorID)

	if gameType == "" {
		return nil, fmt.Errorf("%w: game type is required", ErrValidation)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrValidation)
	}

	code, err := s.generateUniqueRoomCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		return nil, ErrInternal
	}
	logCtx = logCtx.WithField("room_code", code)

	now := time.Now()
	hostID := creatorID
	room := &domain.Room{
		Code:       code,
		Status:     domain.StatusLobby,
		HostID:     &hostID,
		GameType:   gameType,
		Capacity:   capacity,
		LastActive: now,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 唯一性检查和插入之间的罕见竞态，按内部错误处理
			logCtx.WithError(err).Error("Room code collided on insert")
			return nil, ErrInternal
		}
		logCtx.WithError(err).Error("Failed to create room")
		return nil, fmt.Errorf("%w: create room: %v", ErrTransientStorage, err)
	}

	membership := &domain.Membership{
		RoomID:        room.ID,
		ParticipantID: creatorID,
		DisplayName:   displayName,
		Role:          domain.RoleHost,
		Connected:     false,
		Location:      domain.LocationDisconnected,
		LastHeartbeat: now,
		JoinedAt:      now,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to create host membership")
		return nil, fmt.Errorf("%w: create host membership: %v", ErrTransientStorage, err)
	}

	logCtx.WithField("room_id", room.ID).Info("Room created")
	return room, nil
}

// JoinRoom 处理参与者通过房间码加入或重新加入房间。
//
// 整个序列在 (participantID, roomCode) 的 Redis 咨询锁内执行，
// 防止同一参与者的两次连接尝试竞争出重复成员行；
// 锁通过 defer 在任何退出路径上释放，TTL 兜底崩溃场景。
func (s *RoomService) JoinRoom(ctx context.Context, participantID uint, displayName, code, expectedGameType string, spectator bool, handle string) (*domain.RoomSnapshot, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !roomCodePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: malformed room code %q", ErrValidation, code)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"participant_id": participantID,
		"room_code":      code,
	})

	release, acquired, err := s.locks.AcquireJoinLock(ctx, participantID, code, joinLockTTL)
	if err != nil {
		logCtx.WithError(err).Error("Failed to acquire join lock")
		return nil, fmt.Errorf("%w: acquire join lock: %v", ErrTransientStorage, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: concurrent join in progress", ErrConflict)
	}
	defer release()

	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: room %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	if expectedGameType != "" && expectedGameType != room.GameType {
		return nil, ErrWrongGameType
	}

	// 已有成员 → 重连路径，绕过容量/状态检查
	existing, err := s.memberships.FindByRoomAndParticipant(ctx, room.ID, participantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: read membership: %v", ErrTransientStorage, err)
	}
	if existing != nil {
		if room.Status.IsTerminal() {
			return nil, ErrRoomNotJoinable
		}
		if _, err := s.sync.Rejoin(ctx, participantID, room.ID, handle, displayName); err != nil {
			return nil, err
		}
		s.registry.Register(handle, participantID, room.ID)
		logCtx.Info("Participant rejoined room")
		return s.Snapshot(ctx, room.ID)
	}

	// 新成员: 大厅随时可加入；游戏进行中只接受旁观者
	switch room.Status {
	case domain.StatusLobby:
	case domain.StatusInGame, domain.StatusReturning:
		if !spectator {
			return nil, ErrRoomNotJoinable
		}
	default:
		return nil, ErrRoomNotJoinable
	}

	members, err := s.memberships.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list memberships: %v", ErrTransientStorage, err)
	}
	if !spectator {
		players := 0
		for i := range members {
			if members[i].Role != domain.RoleSpectator {
				players++
			}
		}
		if players >= room.Capacity {
			return nil, ErrRoomFull
		}
	}

	role := domain.RolePlayer
	if spectator {
		role = domain.RoleSpectator
	}
	now := time.Now()
	h := handle
	membership := &domain.Membership{
		RoomID:        room.ID,
		ParticipantID: participantID,
		DisplayName:   displayName,
		Role:          role,
		Connected:     true,
		Location:      domain.LocationLobby,
		LastHeartbeat: now,
		Handle:        &h,
		JoinedAt:      now,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 锁竞争的兜底: 另一条路径刚创建了同一成员，按重连处理
			if _, rerr := s.sync.Rejoin(ctx, participantID, room.ID, handle, displayName); rerr != nil {
				return nil, rerr
			}
		} else {
			return nil, fmt.Errorf("%w: create membership: %v", ErrTransientStorage, err)
		}
	}

	s.registry.Register(handle, participantID, room.ID)
	s.touchRoomActivity(ctx, room)
	if err := s.lifecycle.BroadcastRoom(ctx, room.ID); err != nil {
		logCtx.WithError(err).Warn("Broadcast after join failed")
	}

	logCtx.Info("Participant joined room")
	return s.Snapshot(ctx, room.ID)
}

// LeaveRoom 处理显式离开: 删除成员记录，必要时立即重分配房主。
// 成员记录不存在视为已经对账完成的 no-op，不是错误。
func (s *RoomService) LeaveRoom(ctx context.Context, participantID, roomID uint, handle string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"participant_id": participantID,
		"room_id":        roomID,
	})

	if handle != "" {
		s.registry.Remove(handle)
	}
	// 同一参与者可能挂着多条连接，显式离开时全部摘除
	for _, entry := range s.registry.ListByParticipant(participantID) {
		if entry.RoomID == roomID {
			s.registry.Remove(entry.Handle)
		}
	}
	s.sync.Forget(roomID, participantID)

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
	}
	wasHost := room.HostID != nil && *room.HostID == participantID

	if err := s.memberships.Delete(ctx, roomID, participantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // 已被其他路径删除
		}
		return fmt.Errorf("%w: delete membership: %v", ErrTransientStorage, err)
	}

	// 房主显式离开: 立即按同一确定性规则重分配，不经过宽限计时器
	if wasHost {
		if err := s.migration.MigrateNow(ctx, roomID, participantID); err != nil {
			logCtx.WithError(err).Warn("Immediate host migration after explicit leave failed")
		}
	}

	if err := s.lifecycle.AfterMembershipWrite(ctx, roomID, domain.LogicalDisconnected); err != nil {
		logCtx.WithError(err).Warn("Lifecycle evaluation after leave failed")
	}
	logCtx.Info("Participant left room")
	return nil
}

// Disconnect 处理传输层断连: 移除注册表条目并通过同步引擎落盘。
// 注册表未命中视为已对账的 no-op。
func (s *RoomService) Disconnect(ctx context.Context, handle string) error {
	entry, ok := s.registry.Remove(handle)
	if !ok {
		return nil
	}
	_, err := s.sync.UpdateStatus(ctx, entry.ParticipantID, entry.RoomID, domain.LogicalDisconnected, "")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Heartbeat 刷新连接活跃时间并通过同步引擎更新心跳 (高频写入被合并)。
func (s *RoomService) Heartbeat(ctx context.Context, handle string) error {
	entry, ok := s.registry.Lookup(handle)
	if !ok {
		return nil // 注册表未命中按已对账处理
	}
	s.registry.Touch(handle)
	_, err := s.sync.UpdateStatus(ctx, entry.ParticipantID, entry.RoomID, domain.LogicalConnected, "")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// FindRoomByCode 供接口层验证房间存在。
func (s *RoomService) FindRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !roomCodePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: malformed room code %q", ErrValidation, code)
	}
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: room %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
	}
	return room, nil
}

// Snapshot 构造房间的权威全量快照。
func (s *RoomService) Snapshot(ctx context.Context, roomID uint) (*domain.RoomSnapshot, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
		}
		return nil, fmt.Errorf("%w: read room: %v", ErrTransientStorage, err)
	}
	members, err := s.memberships.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: list memberships: %v", ErrTransientStorage, err)
	}
	snap := domain.BuildRoomSnapshot(room, members)
	return &snap, nil
}

// --- 私有辅助函数 ---

// touchRoomActivity 尽力刷新房间活跃时间，版本冲突时放弃 (下一次转换会带上)。
func (s *RoomService) touchRoomActivity(ctx context.Context, room *domain.Room) {
	room.LastActive = time.Now()
	if err := s.rooms.UpdateVersioned(ctx, room, room.Version); err != nil {
		logrus.WithField("room_id", room.ID).WithError(err).Debug("Skipped room activity touch")
	}
}

// generateUniqueRoomCode 生成在非终态房间中唯一的 6 位房间码。
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		taken, err := s.rooms.IsCodeTaken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !taken {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already taken, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxAttempts)
}
