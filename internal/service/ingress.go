package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// ServiceScope 是凭证校验协作方解析出的服务授权范围。
// GameTypes 为允许上报的游戏类型集合，包含 "*" 时表示不限。
type ServiceScope struct {
	ServiceName string
	GameTypes   []string
}

// Allows 判断授权范围是否覆盖指定游戏类型。
func (s *ServiceScope) Allows(gameType string) bool {
	for _, gt := range s.GameTypes {
		if gt == "*" || gt == gameType {
			return true
		}
	}
	return false
}

// CredentialValidator 把服务凭证解析为授权范围，由核心之外实现
// (bootstrap 用静态配置实现，生产可替换为凭证服务)。
type CredentialValidator interface {
	// Validate 校验服务凭证。凭证无效返回 ErrAuth。
	Validate(key string) (*ServiceScope, error)
}

// StatusReport 是外部游戏进程上报的单条参与者状态。
type StatusReport struct {
	ParticipantID uint   `json:"participant_id" binding:"required"`
	RoomCode      string `json:"room_code" binding:"required"`
	Status        string `json:"status" binding:"required"`
	Location      string `json:"location"`
	Metadata      string `json:"metadata"`
}

// BulkEntry 是批量上报中的一条记录。
type BulkEntry struct {
	ParticipantID uint   `json:"participant_id" binding:"required"`
	Status        string `json:"status" binding:"required"`
	Metadata      string `json:"metadata"`
}

// BulkEntryResult 是批量上报中单条记录的处理结果。
type BulkEntryResult struct {
	ParticipantID uint   `json:"participant_id"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

// BulkResult 是批量上报的逐条结果汇总。
type BulkResult struct {
	RoomCode  string            `json:"room_code"`
	Applied   int               `json:"applied"`
	Failed    int               `json:"failed"`
	Committed bool              `json:"committed"`
	Entries   []BulkEntryResult `json:"entries"`
}

// IngressService 把外部状态上报翻译成同步引擎调用 (外部状态入口)。
// 每条被接受的上报恰好对应一次 UpdateStatus —— 没有并行写路径。
// 上报的参与者必须已经是所述房间的成员，绝不按上报凭空插入。
type IngressService struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	sync        *SyncEngine
	uow         repository.UnitOfWork
}

// NewIngressService 创建外部状态入口服务。
func NewIngressService(rooms repository.RoomRepository, memberships repository.MembershipRepository, syncEngine *SyncEngine, uow repository.UnitOfWork) *IngressService {
	if rooms == nil || memberships == nil {
		panic("repositories cannot be nil for IngressService")
	}
	if syncEngine == nil || uow == nil {
		panic("SyncEngine and UnitOfWork cannot be nil for IngressService")
	}
	return &IngressService{
		rooms:       rooms,
		memberships: memberships,
		sync:        syncEngine,
		uow:         uow,
	}
}

// Apply 处理单条状态上报。
func (s *IngressService) Apply(ctx context.Context, scope *ServiceScope, report StatusReport) (*domain.MembershipSnapshot, error) {
	room, logical, err := s.resolve(ctx, scope, report.RoomCode, report.Status, report.Location)
	if err != nil {
		return nil, err
	}
	return s.sync.UpdateStatus(ctx, report.ParticipantID, room.ID, logical, report.Metadata)
}

// ApplyBulk 处理一次批量上报。
//
// 未知的 (参与者, 房间) 组合在事务开始前逐条剔除并记入结果，
// 不会拖垮整批；剩余条目在单个存储事务内应用，任何一条
// 不可恢复的持久化失败都会回滚该房间这一批的全部写入。
func (s *IngressService) ApplyBulk(ctx context.Context, scope *ServiceScope, roomCode, reason string, entries []BulkEntry) (*BulkResult, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: bulk report requires at least one entry", ErrValidation)
	}

	code := strings.ToUpper(strings.TrimSpace(roomCode))
	room, err := s.lookupRoom(ctx, scope, code)
	if err != nil {
		return nil, err
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"room_code": code,
		"reason":    reason,
		"entries":   len(entries),
	})

	result := &BulkResult{
		RoomCode: code,
		Entries:  make([]BulkEntryResult, len(entries)),
	}

	// 预校验: 解析状态 + 确认成员存在。被拒绝的条目不进入事务。
	type pending struct {
		index   int
		entry   BulkEntry
		logical domain.LogicalStatus
	}
	var accepted []pending
	for i, entry := range entries {
		result.Entries[i].ParticipantID = entry.ParticipantID

		logical, perr := domain.ParseLogicalStatus(entry.Status)
		if perr != nil {
			result.Entries[i].Error = fmt.Sprintf("%v: %v", ErrValidation, perr)
			result.Failed++
			continue
		}
		if _, merr := s.memberships.FindByRoomAndParticipant(ctx, room.ID, entry.ParticipantID); merr != nil {
			if errors.Is(merr, repository.ErrNotFound) {
				result.Entries[i].Error = fmt.Sprintf("%v: participant %d has no membership in room %s", ErrNotFound, entry.ParticipantID, code)
				result.Failed++
				continue
			}
			return nil, fmt.Errorf("%w: pre-validate entry: %v", ErrTransientStorage, merr)
		}
		accepted = append(accepted, pending{index: i, entry: entry, logical: logical})
	}

	if len(accepted) == 0 {
		logCtx.Warn("Ingress: bulk report rejected entirely during pre-validation")
		return result, nil
	}

	// 事务内复用同一条写路径: 引擎副本绑定事务仓库
	txErr := s.uow.Do(ctx, func(stores repository.Stores) error {
		engine := s.sync.WithStores(stores)
		for _, p := range accepted {
			if _, err := engine.UpdateStatus(ctx, p.entry.ParticipantID, room.ID, p.logical, p.entry.Metadata); err != nil {
				return fmt.Errorf("entry for participant %d: %w", p.entry.ParticipantID, err)
			}
		}
		return nil
	})
	if txErr != nil {
		// 回滚: 这一批对该房间的写入全部不算提交
		logCtx.WithError(txErr).Error("Ingress: bulk transaction rolled back")
		for _, p := range accepted {
			result.Entries[p.index].Error = "rolled back: " + txErr.Error()
			result.Failed++
		}
		return result, nil
	}

	for _, p := range accepted {
		result.Entries[p.index].OK = true
		result.Applied++
	}
	result.Committed = true
	logCtx.WithFields(logrus.Fields{"applied": result.Applied, "failed": result.Failed}).Info("Ingress: bulk report applied")
	return result, nil
}

// --- 私有辅助函数 ---

func (s *IngressService) resolve(ctx context.Context, scope *ServiceScope, roomCode, status, location string) (*domain.Room, domain.LogicalStatus, error) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))
	room, err := s.lookupRoom(ctx, scope, code)
	if err != nil {
		return nil, "", err
	}

	logical, err := domain.ParseLogicalStatus(status)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// location 字段可选；提供时必须与逻辑状态的全映射一致
	if location != "" && domain.Location(location) != logical.Triple().Location {
		return nil, "", fmt.Errorf("%w: location %q inconsistent with status %q", ErrValidation, location, status)
	}
	return room, logical, nil
}

func (s *IngressService) lookupRoom(ctx context.Context, scope *ServiceScope, code string) (*domain.Room, error) {
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
	if scope != nil && !scope.Allows(room.GameType) {
		return nil, fmt.Errorf("%w: service not scoped for game type %q", ErrAuth, room.GameType)
	}
	return room, nil
}
